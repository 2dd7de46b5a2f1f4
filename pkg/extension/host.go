package extension

import (
	"github.com/mailmount/mailmount/pkg/extension/event"
)

// Host defines extension points for mailmount.
type Host struct {
	Events *Events
}

// Events defines all the event types supported by the extension host.
//
// Before-events let extensions alter how the engine proceeds.  They run synchronously inside the
// sync or send operation; the first listener to respond with a non-nil value decides, and the
// remaining listeners are not called.
//
// After-events notify extensions once something has happened.  Each listener runs in its own
// goroutine.
type Events struct {
	AfterAccountSynced       AsyncEventBroker[event.SyncSummary]
	AfterMessageSent         AsyncEventBroker[event.SentMessage]
	AfterMessageStored       AsyncEventBroker[event.MessageMetadata]
	BeforeMessageCategorized EventBroker[event.CategoryRequest, event.CategoryResult]
}

// NewHost creates a new extension host.
func NewHost() *Host {
	return &Host{Events: &Events{}}
}
