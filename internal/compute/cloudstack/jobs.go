package cloudstack

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Values of queryAsyncJobResult's jobstatus.
const (
	jobPending   = 0
	jobSucceeded = 1
	jobFailed    = 2
)

var errJobPending = errors.New("job still pending")

// JobError is an async job that finished with a failure.
type JobError struct {
	JobID   string
	Code    int64
	Message string
}

func (e *JobError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("job %s failed: %s (code %d)", e.JobID, e.Message, e.Code)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// waitForJob polls a job until it finishes and returns its jobresult.
func (c *Client) waitForJob(ctx context.Context, jobID string) (gjson.Result, error) {
	attempts := uint(c.jobTimeout/c.pollInterval) + 1
	logger := log.Ctx(ctx).With().Str("job", jobID).Logger()

	var result gjson.Result
	err := retry.Do(func() error {
		res, err := c.call(ctx, "queryAsyncJobResult", url.Values{"jobid": {jobID}})
		if err != nil {
			return err
		}

		switch status := res.Get("jobstatus").Int(); status {
		case jobPending:
			return errJobPending
		case jobSucceeded:
			result = res.Get("jobresult")
			return nil
		case jobFailed:
			jobResult := res.Get("jobresult")
			return &JobError{
				JobID:   jobID,
				Code:    jobResult.Get("errorcode").Int(),
				Message: jobResult.Get("errortext").String(),
			}
		default:
			return fmt.Errorf("job %s has unknown status %d", jobID, status)
		}
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errJobPending)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug().Uint("attempt", n+1).Msg("waiting for job")
		}),
	)
	if errors.Is(err, errJobPending) {
		return gjson.Result{}, fmt.Errorf("job %s did not finish within %v", jobID, c.jobTimeout)
	}
	if err != nil {
		return gjson.Result{}, err
	}

	return result, nil
}
