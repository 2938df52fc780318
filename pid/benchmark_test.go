//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package pid

import (
	"fmt"
	"testing"

	"github.com/slaxman1978/fbpcs/lift"
	"github.com/slaxman1978/fbpcs/p2p"
)

func benchKeys(prefix string, shared, own int) []string {
	keys := make([]string, 0, shared+own)
	for i := 0; i < shared; i++ {
		keys = append(keys, fmt.Sprintf("shared-%d", i))
	}
	for i := 0; i < own; i++ {
		keys = append(keys, fmt.Sprintf("%s-%d", prefix, i))
	}
	return keys
}

func BenchmarkMatch(b *testing.B) {
	for _, numKeys := range []int{100, 1000} {
		b.Run(fmt.Sprintf("%dKeys", numKeys), func(b *testing.B) {
			pubKeys := benchKeys("pub", numKeys/2, numKeys/2)
			partKeys := benchKeys("part", numKeys/2, numKeys/2)

			for i := 0; i < b.N; i++ {
				pubConfig, err := testConfig()
				if err != nil {
					b.Fatal(err)
				}
				partConfig, err := testConfig()
				if err != nil {
					b.Fatal(err)
				}
				pipe, otherPipe := p2p.Pipe()
				done := make(chan error)

				go func() {
					_, err := Match(partConfig, lift.Partner, pipe, partKeys)
					done <- err
				}()

				union, err := Match(pubConfig, lift.Publisher, otherPipe,
					pubKeys)
				if err != nil {
					b.Fatalf("publisher: %s", err)
				}
				if err := <-done; err != nil {
					b.Fatalf("partner: %s", err)
				}
				if union.Rows != numKeys/2+numKeys {
					b.Fatalf("union has %d rows, expected %d",
						union.Rows, numKeys/2+numKeys)
				}
			}
		})
	}
}
