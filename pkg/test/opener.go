package test

import (
	"context"
	"sync"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/engine"
)

// OpenerStub hands out stub sessions, or fails with the configured errors.
type OpenerStub struct {
	Source        *SourceStub
	Transport     *TransportStub
	RetrievalErr  error
	SubmissionErr error

	mu          sync.Mutex
	retrievals  int
	submissions int
}

var _ engine.Opener = (*OpenerStub)(nil)

// NewOpener creates an OpenerStub with empty stub sessions.
func NewOpener() *OpenerStub {
	return &OpenerStub{Source: &SourceStub{}, Transport: &TransportStub{}}
}

// OpenRetrieval returns Source.
func (o *OpenerStub) OpenRetrieval(ctx context.Context, acct *account.Account) (engine.Retrieval, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retrievals++
	if o.RetrievalErr != nil {
		return nil, o.RetrievalErr
	}
	return o.Source, nil
}

// OpenSubmission returns Transport.
func (o *OpenerStub) OpenSubmission(ctx context.Context, acct *account.Account) (engine.Submission, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submissions++
	if o.SubmissionErr != nil {
		return nil, o.SubmissionErr
	}
	return o.Transport, nil
}

// Opened returns how many retrieval and submission sessions were requested.
func (o *OpenerStub) Opened() (retrievals, submissions int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retrievals, o.submissions
}
