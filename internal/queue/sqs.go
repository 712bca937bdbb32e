package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// ErrTooManyAttempts is returned for a message received more than MaxMessageAttempts times.
var ErrTooManyAttempts = errors.New("too many attempts")

// jobMessage is the body of a queued job.
type jobMessage struct {
	JobID uuid.UUID `json:"job_id"`
}

// Service represents SQS service.
type Service struct {
	client sqsiface.SQSAPI
	cfg    *Config
}

// New creates new SQS service.
func New(cfg *Config) *Service {
	sqsSession := session.Must(
		session.NewSessionWithOptions(session.Options{
			Config: aws.Config{
				Credentials: credentials.NewStaticCredentials(cfg.KeyID, cfg.SecretKey, ""),
				Region:      aws.String(cfg.Region),
				Endpoint:    aws.String(cfg.URL),
			},
		}),
	)
	return NewWithClient(sqs.New(sqsSession), cfg)
}

// NewWithClient creates new SQS service using the client.
func NewWithClient(client sqsiface.SQSAPI, cfg *Config) *Service {
	return &Service{
		client: client,
		cfg:    cfg,
	}
}

// VisibilityTimeout of received messages.
func (svc *Service) VisibilityTimeout() time.Duration {
	return svc.cfg.VisibilityTimeout
}

// DecodeJobID decodes the job id of a message.
// A message which can't be decoded, or was received too many times, is deleted.
func (svc *Service) DecodeJobID(ctx context.Context, queueURL *string, message *sqs.Message) (uuid.UUID, error) {
	receiveCount, ok := message.Attributes[sqs.MessageSystemAttributeNameApproximateReceiveCount]
	if ok && receiveCount != nil && !svc.cfg.Debug {
		cnt, _ := strconv.Atoi(*receiveCount)
		if cnt > svc.cfg.MaxMessageAttempts {
			if err := svc.DeleteMessage(ctx, queueURL, message); err != nil {
				return uuid.Nil, err
			}
			return uuid.Nil, errors.Wrapf(ErrTooManyAttempts, "message has been received %d times, deleted", cnt)
		}
	}

	var msg jobMessage
	err := json.UnmarshalFromString(aws.StringValue(message.Body), &msg)
	if err == nil && msg.JobID == uuid.Nil {
		err = errors.New("job id is empty")
	}
	if err != nil {
		if delErr := svc.DeleteMessage(ctx, queueURL, message); delErr != nil {
			return uuid.Nil, delErr
		}
		return uuid.Nil, errors.Wrap(err, "unable to decode the message")
	}
	return msg.JobID, nil
}

// GetMessages returns messages from queue.
func (svc *Service) GetMessages(ctx context.Context, input *sqs.ReceiveMessageInput) ([]*sqs.Message, error) {
	msgResult, err := svc.client.ReceiveMessageWithContext(ctx, input)
	if err != nil {
		return nil, err
	}
	return msgResult.Messages, nil
}

// GetQueueURL returns queue URL.
// Creates queue if it doesn't exist.
func (svc *Service) GetQueueURL(ctx context.Context, queue string) (*string, error) {
	urlResult, err := svc.client.GetQueueUrlWithContext(ctx,
		&sqs.GetQueueUrlInput{
			QueueName: &queue,
		})
	if err != nil {
		var errReq awserr.RequestFailure
		if errors.As(err, &errReq) && errReq.Code() == sqs.ErrCodeQueueDoesNotExist {
			return svc.CreateQueue(ctx, queue)
		}
		return nil, err
	}
	return urlResult.QueueUrl, nil
}

// CreateQueue creates queue.
func (svc *Service) CreateQueue(ctx context.Context, queue string) (*string, error) {
	out, err := svc.client.CreateQueueWithContext(
		ctx, &sqs.CreateQueueInput{
			QueueName: aws.String(queue),
			Attributes: map[string]*string{
				sqs.QueueAttributeNameVisibilityTimeout: aws.String(
					strconv.Itoa(int(svc.cfg.VisibilityTimeout / time.Second)),
				),
			},
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create queue %q", queue)
	}
	return out.QueueUrl, nil
}

// SendJob enqueues the job id.
func (svc *Service) SendJob(ctx context.Context, queueURL *string, jobID uuid.UUID) error {
	body, err := json.MarshalToString(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}

	_, err = svc.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		MessageBody: aws.String(body),
		QueueUrl:    queueURL,
	})
	return err
}

// DeleteMessage deletes message from queue.
func (svc *Service) DeleteMessage(ctx context.Context, queueURL *string, message *sqs.Message) error {
	_, err := svc.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      queueURL,
		ReceiptHandle: message.ReceiptHandle,
	})
	return err
}
