package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxWorkers is the SQS limit of messages per receive call.
const maxWorkers = 10

// messageReceiver is an interface for receiving job messages from the queue.
type messageReceiver interface {
	VisibilityTimeout() time.Duration
	DecodeJobID(ctx context.Context, queueURL *string, message *sqs.Message) (uuid.UUID, error)
	GetMessages(ctx context.Context, input *sqs.ReceiveMessageInput) ([]*sqs.Message, error)
	DeleteMessage(ctx context.Context, queueURL *string, message *sqs.Message) error
}

// Worker receives job ids from the queue and processes them in a pool of goroutines.
type Worker struct {
	queueURL  *string
	workers   int
	receiver  messageReceiver
	processor Processor
	backOff   backoff.BackOff
	logger    *zap.Logger
}

// NewWorker creates a new worker.
func NewWorker(
	queueURL *string,
	workers int,
	receiver messageReceiver,
	processor Processor,
	logger *zap.Logger,
) (*Worker, error) {
	if workers < 1 || workers > maxWorkers {
		return nil, errors.Errorf("workers count must be between 1 and %d", maxWorkers)
	}
	if queueURL == nil {
		return nil, errors.New("must specify queueURL")
	}
	if receiver == nil {
		return nil, errors.New("must specify Receiver")
	}
	if processor == nil {
		return nil, errors.New("must specify Processor")
	}
	if logger == nil {
		return nil, errors.New("must specify logger")
	}
	return &Worker{
		queueURL:  queueURL,
		workers:   workers,
		receiver:  receiver,
		processor: processor,
		backOff:   newBackOff(),
		logger:    logger,
	}, nil
}

// newBackOff returns the delay policy between failed receive calls, it never stops.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// WatchMessages starts a polling loop for messages from the queue,
// followed by their processing. It returns after ctx is done and all
// running jobs have finished.
func (w *Worker) WatchMessages(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()
	defer w.handlePanic()

	messages := make(chan *sqs.Message)

	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.handlePanic()
			w.listenMessages(ctx, messages)
		}()
	}

	for {
		output, err := w.receiveMessages(ctx)
		if ctx.Err() != nil {
			w.logger.Info("Termination of the worker due to context cancellation")
			return
		}
		if err != nil {
			delay := w.backOff.NextBackOff()
			w.logger.Error("Error reading messages from the queue", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		w.backOff.Reset()

		for _, message := range output {
			select {
			case <-ctx.Done():
				return
			case messages <- message:
			}
		}
	}
}

// listenMessages listens for messages from the queue.
func (w *Worker) listenMessages(ctx context.Context, messages chan *sqs.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-messages:
			w.handleMessage(ctx, msg)
		}
	}
}

// receiveMessages receives messages.
func (w *Worker) receiveMessages(ctx context.Context) ([]*sqs.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            w.queueURL,
		MaxNumberOfMessages: aws.Int64(int64(w.workers)),
		WaitTimeSeconds:     aws.Int64(10),
		VisibilityTimeout:   aws.Int64(int64(w.receiver.VisibilityTimeout() / time.Second)),
		AttributeNames:      []*string{aws.String(sqs.MessageSystemAttributeNameApproximateReceiveCount)},
	}

	return w.receiver.GetMessages(ctx, input)
}

// handleMessage processes one job message.
// A message is deleted only after its job has been processed.
func (w *Worker) handleMessage(ctx context.Context, sqsMsg *sqs.Message) {
	start := time.Now()
	logg := w.logger.With(zap.String("message_id", aws.StringValue(sqsMsg.MessageId)))
	logg.Info("Message received for processing")

	jobID, err := w.receiver.DecodeJobID(ctx, w.queueURL, sqsMsg)
	if err != nil {
		logg.Error("Error decoding the message", zap.Error(err))
		return
	}

	if err := w.processor.WithLogger(logg).ProcessJob(ctx, jobID); err != nil {
		logg.Error("Error processing the message", zap.Error(err))
		return
	}

	if err := w.receiver.DeleteMessage(ctx, w.queueURL, sqsMsg); err != nil {
		logg.Error("Error deleting the message", zap.Error(err))
		return
	}

	logg.With(zap.Duration("duration", time.Since(start))).
		Info("Successfully processed the message")
}

// handlePanic catches panic and logs the error.
func (w *Worker) handlePanic() {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = errors.Errorf("%v", r)
		}
		w.logger.Error(
			"Panic",
			zap.Error(err),
			zap.ByteString("stacktrace", debug.Stack()),
		)
	}
}
