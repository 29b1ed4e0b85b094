package inbox

import "errors"

var (
	ErrNoSelection         = errors.New("no thread selected")
	ErrThreadGone          = errors.New("thread is no longer in the inbox")
	ErrEmptyReply          = errors.New("reply text is empty")
	ErrNoReplyTarget       = errors.New("missing message id to reply to")
	ErrRecipientNotAllowed = errors.New("sending is not allowed to this recipient")
	ErrSendBlocked         = errors.New("send blocked")
	ErrClosed              = errors.New("console closed")
)
