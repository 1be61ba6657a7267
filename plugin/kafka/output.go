package kafka

import (
	"encoding/json"
	"sync"

	kctl "github.com/jbvmio/kafka"
	"github.com/Osman-OO/pipe/log"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

// Output publishes decoded records as JSON to one or more Kafka topics.
type Output struct {
	brokers []string
	topics  []string

	client    *kctl.KClient
	producers []*kctl.Producer
	stopChan  chan struct{}
	wg        sync.WaitGroup
	l         log.Logger
}

// NewOutput creates a kafka Output from merged options.
func NewOutput(opts plugin.Options, l log.Logger) (plugin.Plugin, error) {
	brokers := opts.Strings(`brokers`)
	if len(brokers) == 0 {
		return nil, errors.Wrap(plugin.ErrInvalidOption, "missing brokers for kafka output")
	}
	topics := opts.Strings(`topics`)
	if len(topics) == 0 {
		return nil, errors.Wrap(plugin.ErrInvalidOption, "missing topics for kafka output")
	}
	return &Output{
		brokers:  brokers,
		topics:   filterUnique(topics),
		stopChan: make(chan struct{}),
		l:        l,
	}, nil
}

// Start connects to the cluster and creates one producer per topic.
func (out *Output) Start() error {
	conf := kctl.GetConf(clientID())
	conf.Version = useKafkaVersion
	client, err := kctl.NewCustomClient(conf, out.brokers...)
	if err != nil {
		return errors.Wrap(err, "kafka could not create client")
	}
	if ok := topicsExist(client, out.topics...); !ok {
		client.Close()
		return errors.Errorf("kafka could not validate output topics %v", out.topics)
	}
	out.client = client
	out.producers = make([]*kctl.Producer, len(out.topics))
	for i := range out.topics {
		p, err := client.NewProducer()
		if err != nil {
			client.Close()
			return errors.Wrap(err, "kafka could not create producer")
		}
		out.producers[i] = p
		out.wg.Add(1)
		go out.drain(out.topics[i], p)
	}
	return nil
}

// drain consumes producer acks and surfaces delivery errors in the log.
func (out *Output) drain(topic string, p *kctl.Producer) {
	defer out.wg.Done()
	for {
		select {
		case <-out.stopChan:
			return
		case e := <-p.Errors():
			out.l.Errorf("producer for topic %s: %v", topic, e.Err)
		case <-p.Successes():
		}
	}
}

// Emit publishes the record as JSON to every configured topic.
func (out *Output) Emit(rec plugin.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	for i, p := range out.producers {
		p.Input() <- &kctl.Message{
			Topic: out.topics[i],
			Value: b,
		}
	}
	return nil
}

// Stop stops the producers and closes the client.
func (out *Output) Stop() error {
	close(out.stopChan)
	out.wg.Wait()
	if out.client != nil {
		return out.client.Close()
	}
	return nil
}
