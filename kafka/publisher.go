// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/Shopify/sarama"
	"github.com/opensource-observer/collect"
	"github.com/pkg/errors"
)

// JSONEdge implements the sarama.Encoder interface for an edge using json.
type JSONEdge struct {
	From  uint64           `json:"from"`
	To    uint64           `json:"to"`
	Kind  collect.EdgeKind `json:"kind"`
	Depth int64            `json:"depth"`
}

// Encode marshals the edge to json.
func (e JSONEdge) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Length returns the length of the marshalled json.
func (e JSONEdge) Length() int {
	bytes, _ := e.Encode()
	return len(bytes)
}

// Publisher is a collect.EdgeStore which writes each batch to an inner store
// and then publishes every edge of the batch to a topic, keyed by the edge's
// natural key so that consumers see updates to one edge in order. A publish
// failure fails the call; since the inner store upserts, retrying the batch
// is safe, though consumers may see an edge more than once.
type Publisher struct {
	inner    collect.EdgeStore
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher returns a Publisher. It takes ownership of producer.
func NewPublisher(inner collect.EdgeStore, producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{inner: inner, producer: producer, topic: topic}
}

// NewProducer connects a SyncProducer to the brokers at hosts.
func NewProducer(hosts []string) (sarama.SyncProducer, error) {
	sarama.Logger = log.New(io.Discard, "", 0)
	conf := sarama.NewConfig()
	conf.Version = sarama.V2_0_0_0
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Idempotent = true
	conf.Net.MaxOpenRequests = 1
	producer, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.Wrap(err, "getting new producer")
	}
	return producer, nil
}

// UpsertEdges implements collect.EdgeStore.
func (p *Publisher) UpsertEdges(ctx context.Context, edges []collect.Edge) (int, error) {
	n, err := p.inner.UpsertEdges(ctx, edges)
	if err != nil {
		return 0, err
	}
	msgs := make([]*sarama.ProducerMessage, len(edges))
	for i, e := range edges {
		msgs[i] = &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%d:%d:%s", e.FromID, e.ToID, e.Kind)),
			Value: JSONEdge{From: e.FromID, To: e.ToID, Kind: e.Kind, Depth: e.Depth},
		}
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		return 0, errors.Wrapf(err, "publishing %d edges to %s", len(msgs), p.topic)
	}
	return n, nil
}

// Close closes the producer.
func (p *Publisher) Close() error {
	return errors.Wrap(p.producer.Close(), "closing kafka producer")
}
