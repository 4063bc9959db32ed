package outbox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/matheus3301/nestsync/internal/model"
	"github.com/matheus3301/nestsync/internal/scheduler"
	"go.uber.org/zap"
)

// SendPriority is the scheduler priority of message submissions.
const SendPriority = 10

// ErrInvalidMessage is returned when a message fails the send preconditions.
var ErrInvalidMessage = errors.New("invalid message")

// MessageSender is the interface for submitting messages to the marketplace API.
type MessageSender interface {
	SendMessage(ctx context.Context, req model.SendRequest) (*model.Message, error)
}

// Sender validates outgoing messages, builds their optimistic placeholder and
// delivers them through the scheduler with retry.
type Sender struct {
	transport MessageSender
	sched     *scheduler.Scheduler
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	seq       atomic.Uint64
}

// NewSender creates a new outbox sender.
func NewSender(transport MessageSender, sched *scheduler.Scheduler, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Sender{
		transport: transport,
		sched:     sched,
		validate:  v,
		logger:    logger,
		now:       time.Now,
	}
}

// Prepare checks the send preconditions and returns the request together with
// the optimistic message to show until the server confirms it.
func (s *Sender) Prepare(peer model.Peer, content string) (model.SendRequest, model.Message, error) {
	req := model.SendRequest{
		SenderID:     peer.SenderID,
		ReceiverID:   peer.ReceiverID,
		Content:      strings.TrimSpace(content),
		PropertyID:   peer.PropertyID,
		ReceiverType: peer.ReceiverType,
	}
	if err := s.Validate(req); err != nil {
		return model.SendRequest{}, model.Message{}, err
	}

	msg := model.Message{
		ID:         s.TempID(),
		Content:    req.Content,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		PropertyID: req.PropertyID,
		CreatedAt:  s.now(),
		Status:     model.StatusSending,
	}
	return req, msg, nil
}

// Validate reports every failed precondition of req in one error wrapping
// ErrInvalidMessage.
func (s *Sender) Validate(req model.SendRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "max":
			problems = append(problems, fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param()))
		default:
			problems = append(problems, fe.Field()+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidMessage, strings.Join(problems, ", "))
}

// TempID returns a client-local id that never collides with another one
// issued by this sender.
func (s *Sender) TempID() string {
	return "temp_" + strconv.FormatInt(s.now().UnixMilli(), 10) + "_" + strconv.FormatUint(s.seq.Add(1), 10)
}

// Deliver submits req at send priority, retrying up to the scheduler's
// MaxRetries. The last error is returned unchanged.
func (s *Sender) Deliver(ctx context.Context, tempID string, req model.SendRequest) (*model.Message, error) {
	start := time.Now()
	msg, err := scheduler.Retry(ctx, s.sched, "send", SendPriority, s.sched.Config().MaxRetries,
		func(ctx context.Context) (*model.Message, error) {
			return s.transport.SendMessage(ctx, req)
		})
	if err != nil {
		s.logger.Error("failed to send message", zap.Error(err), zap.String("temp_id", tempID))
		return nil, err
	}
	if msg == nil {
		return nil, errors.New("send message: empty response")
	}
	s.logger.Info("message sent",
		zap.String("temp_id", tempID),
		zap.String("server_msg_id", msg.ID),
		zap.Duration("took", time.Since(start)))
	return msg, nil
}
