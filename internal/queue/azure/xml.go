package azure

import (
	"encoding/xml"
	"strings"

	"github.com/jbweber/nimbus/internal/queue"
)

// enumerationResults is the body of a List Queues response.
type enumerationResults struct {
	XMLName         xml.Name    `xml:"EnumerationResults"`
	ServiceEndpoint string      `xml:"ServiceEndpoint,attr"`
	Prefix          string      `xml:"Prefix"`
	Marker          string      `xml:"Marker"`
	Queues          []wireQueue `xml:"Queues>Queue"`
	NextMarker      string      `xml:"NextMarker"`
}

// wireQueue accepts both the current <Name> element and the <QueueName>
// and <Url> elements of older service versions.
type wireQueue struct {
	Name      string `xml:"Name"`
	QueueName string `xml:"QueueName"`
	URL       string `xml:"Url"`
}

func (q wireQueue) toQueue(serviceEndpoint string) queue.Queue {
	name := q.Name
	if name == "" {
		name = q.QueueName
	}

	u := q.URL
	if u == "" && serviceEndpoint != "" {
		u = strings.TrimSuffix(serviceEndpoint, "/") + "/" + name
	}

	return queue.Queue{Name: name, URL: u}
}

// queueMessagesList is the body of Get Messages, Peek Messages and Put
// Message responses.
type queueMessagesList struct {
	XMLName  xml.Name      `xml:"QueueMessagesList"`
	Messages []wireMessage `xml:"QueueMessage"`
}

type wireMessage struct {
	MessageID       string `xml:"MessageId"`
	InsertionTime   string `xml:"InsertionTime"`
	ExpirationTime  string `xml:"ExpirationTime"`
	PopReceipt      string `xml:"PopReceipt"`
	TimeNextVisible string `xml:"TimeNextVisible"`
	DequeueCount    int    `xml:"DequeueCount"`
	MessageText     string `xml:"MessageText"`
}

func (m wireMessage) toMessage() queue.Message {
	return queue.Message{
		MessageID:       m.MessageID,
		InsertionTime:   m.InsertionTime,
		ExpirationTime:  m.ExpirationTime,
		PopReceipt:      m.PopReceipt,
		TimeNextVisible: m.TimeNextVisible,
		DequeueCount:    m.DequeueCount,
		MessageText:     m.MessageText,
	}
}

// postMessage is the body of a Put Message request.
type postMessage struct {
	XMLName     xml.Name `xml:"QueueMessage"`
	MessageText string   `xml:"MessageText"`
}

// errorBody is the body Azure sends with failed requests.
type errorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}
