package job

import "github.com/Disant-codes/keystore-filesystem/internal/klog"

// Sink is the Response Channel (RC) from spec.md §4.7: the path a job
// uses to ship one status transition back to its originating client.
// It is not buffered and does not retry; spec.md requires a failed
// send to be logged, not retried, and the remaining transitions for
// that job to still be attempted.
type Sink interface {
	Send(resp *Response) error

	// Abort tears down the sink's connection instead of delivering a
	// normal response, per spec.md §7: "storage IO errors are logged
	// and the connection is torn down." No response frame is sent.
	Abort()
}

// Job is an in-memory (request, response, sink) triple, per spec.md §3.
// It is created by the dispatcher, owned by the Job Queue between push
// and pop, and owned exclusively by one worker from pop-time onward.
type Job struct {
	Request  *Request
	Response *Response
	sink     Sink
}

// New builds a Job in the NOT_STARTED state. sink is where status
// transitions are sent; typically a per-connection response writer.
func New(req *Request, sink Sink) *Job {
	return &Job{
		Request: req,
		Response: &Response{
			Type:   req.Type,
			Status: NotStarted,
			Error:  NoError,
		},
		sink: sink,
	}
}

// emit sends the current response over the sink, logging (not
// returning) a send failure — per spec.md §4.7/§5, a client that has
// disconnected must not block or fail the underlying store operation.
func (j *Job) emit() {
	if err := j.sink.Send(j.Response); err != nil {
		klog.Debugf("job", "status %s for %s %q not delivered: %v",
			j.Response.Status, j.Request.Type, j.Request.Key, err)
	}
}

// submit transitions NOT_STARTED -> SUBMITTED and emits it. Called by
// Queue.Push.
func (j *Job) submit() {
	j.Response.Status = Submitted
	j.emit()
}

// startProcessing transitions -> PROCESSING and emits it. Called by
// Queue.Pop.
func (j *Job) startProcessing() {
	j.Response.Status = Processing
	j.emit()
}

// Complete emits the job's current (already terminal) response. Called
// by the worker after the KV engine has filled in Response.Status and
// Response.Error.
func (j *Job) Complete() {
	j.emit()
}

// Abort tears down the job's connection instead of completing it
// normally. Called by the worker pool when the KV engine reports a
// storage IO error rather than a taxonomy outcome, per spec.md §7.
func (j *Job) Abort() {
	j.sink.Abort()
}
