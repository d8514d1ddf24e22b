// Package cloudstack implements compute.Service against the CloudStack
// HTTP API.
//
// Every command is a GET on the API endpoint with command=... and
// response=json. Responses are read with gjson rather than decoded into
// structs, since CloudStack wraps every payload in a "<command>response"
// object and omits empty lists entirely.
//
// Asynchronous commands (deployVirtualMachine, destroyVirtualMachine,
// deleteNetwork, associateIpAddress) return a job id that is polled with
// queryAsyncJobResult until the job succeeds or fails.
//
// Requests are not signed. The client is meant for the unauthenticated
// integration port, a signing proxy, or a login session key.
package cloudstack
