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
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/opensource-observer/collect"
	"github.com/opensource-observer/collect/mock"
	"github.com/opensource-observer/collect/test"
	"github.com/pkg/errors"
)

func TestPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	got := make([]JSONEdge, 0)
	for i := 0; i < 2; i++ {
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var e JSONEdge
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			got = append(got, e)
			return nil
		})
	}
	store := mock.NewStore()
	p := NewPublisher(store, producer, "edges")

	n, err := p.UpsertEdges(context.Background(), test.Edges([2]uint64{2, 1}, [2]uint64{3, 1}))
	test.ErrNil(t, err, "UpsertEdges")
	test.MustBe(t, 2, n)
	test.MustBe(t, []JSONEdge{
		{From: 2, To: 1, Kind: collect.DependsOn, Depth: 1},
		{From: 3, To: 1, Kind: collect.DependsOn, Depth: 1},
	}, got)
	test.ErrNil(t, p.Close(), "Close")
}

func TestPublisherFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewPublisher(mock.NewStore(), producer, "edges")
	_, err := p.UpsertEdges(context.Background(), test.Edges([2]uint64{2, 1}))
	if err == nil {
		t.Fatalf("expected publish error")
	}
	test.ErrNil(t, p.Close(), "Close")
}

func TestPublisherInnerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	store := mock.NewStore()
	store.FailNext = 1
	store.FailErr = errors.New("disk full")
	p := NewPublisher(store, producer, "edges")
	_, err := p.UpsertEdges(context.Background(), test.Edges([2]uint64{2, 1}))
	test.ErrContains(t, err, "disk full")
	test.ErrNil(t, p.Close(), "Close")
}

func TestJSONEdgeLength(t *testing.T) {
	e := JSONEdge{From: 1, To: 2, Kind: collect.DependsOn, Depth: 3}
	bs, err := e.Encode()
	test.ErrNil(t, err, "Encode")
	test.MustBe(t, len(bs), e.Length())
}
