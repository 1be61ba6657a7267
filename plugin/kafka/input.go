package kafka

import (
	"context"
	"time"

	kctl "github.com/jbvmio/kafka"
	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Input consumes Kafka topics and feeds each message into the pipeline.
// The message topic becomes the stream name, so payloads from different
// topics keep separate decoder state.
type Input struct {
	brokers     []string
	topics      []string
	group       string
	deleteGroup bool
	startOldest bool
	threads     int

	client        *kctl.KClient
	consumers     []*kctl.ConsumerGroup
	data          chan *kctl.Message
	errs          chan error
	cgStoppedChan chan int
	stopped       bool
	l             log.Logger
}

// NewInput creates a kafka Input from merged options.
func NewInput(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	brokers := opts.Strings(`brokers`)
	if len(brokers) == 0 {
		return nil, errors.Wrap(plugin.ErrInvalidOption, "missing brokers for kafka input")
	}
	topics := opts.Strings(`topics`)
	if len(topics) == 0 {
		return nil, errors.Wrap(plugin.ErrInvalidOption, "missing topics for kafka input")
	}
	threads := opts.Int(`threads`, 1)
	if threads < 1 {
		threads = 1
	}
	return &Input{
		brokers:     brokers,
		topics:      filterUnique(topics),
		group:       opts.String(`group`, `pipe`),
		deleteGroup: opts.Bool(`delete_group`, false),
		startOldest: opts.Bool(`start_oldest`, false),
		threads:     threads,
		data:        make(chan *kctl.Message, defaultBuffer),
		errs:        make(chan error, defaultBuffer),
		l:           l,
	}, nil
}

// Start connects to the cluster and creates the consumer groups. Missing
// brokers or topics are startup failures.
func (in *Input) Start() error {
	conf := kctl.GetConf(clientID())
	conf.Version = useKafkaVersion
	if in.startOldest {
		conf.Consumer.Offsets.Initial = -2
	}
	client, err := kctl.NewCustomClient(conf, in.brokers...)
	if err != nil {
		return errors.Wrap(err, "kafka could not create client")
	}
	in.client = client
	if in.deleteGroup {
		if err := deleteCG(client, in.group); err != nil {
			in.l.Warnf("kafka could not delete group: %v", err)
		}
	}
	if ok := topicsExist(client, in.topics...); !ok {
		client.Close()
		return errors.Errorf("kafka could not validate input topics %v", in.topics)
	}
	in.consumers = make([]*kctl.ConsumerGroup, in.threads)
	in.cgStoppedChan = make(chan int, in.threads)
	for i := 0; i < in.threads; i++ {
		cfg := kctl.GetConf(clientID())
		consumer, err := kctl.NewConsumerGroup(in.brokers, in.group, cfg, in.topics...)
		if err != nil {
			client.Close()
			return errors.Wrap(err, "kafka could not create consumer")
		}
		consumer.GETALL(in.processMSG)
		in.consumers[i] = consumer
	}
	return nil
}

func (in *Input) processMSG(msg *kctl.Message) (bool, error) {
	if in.stopped {
		return false, nil
	}
	in.data <- msg
	return true, nil
}

// Run consumes until the context is cancelled, delivering each message
// value on a stream named after its topic.
func (in *Input) Run(ctx context.Context, deliver plugin.DeliverFunc) error {
	for i := 0; i < len(in.consumers); i++ {
		go func(id int, consumer *kctl.ConsumerGroup) {
			if err := consumer.Consume(); err != nil {
				in.errs <- err
			}
			in.cgStoppedChan <- id
		}(i, in.consumers[i])
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-in.errs:
			return errors.Wrap(err, "kafka consumer failed")
		case msg := <-in.data:
			deliver(`kafka:`+msg.Topic, msg.Value)
		}
	}
}

// Stop closes the consumers and the client.
func (in *Input) Stop() error {
	in.stopped = true
	var firstErr error
	for i := 0; i < len(in.consumers); i++ {
		if err := in.consumers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	to := time.NewTimer(15 * time.Second)
	defer to.Stop()
cgStop:
	for i := 0; i < len(in.consumers); i++ {
		select {
		case <-to.C:
			in.l.Warnf("timed out waiting for consumers to stop")
			break cgStop
		case id := <-in.cgStoppedChan:
			in.l.Debugf("consumer group thread %d stopped", id)
		}
	}
	if in.deleteGroup {
		if err := deleteCG(in.client, in.group); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if in.client != nil {
		if err := in.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
