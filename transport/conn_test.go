package transport_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cifrazia/cats-go/config"
	"github.com/cifrazia/cats-go/transport"
)

func pipeConn() *transport.Conn {
	client, server := net.Pipe()
	_ = client
	return transport.NewConn(server, config.Default(), nil)
}

var _ = Describe("Conn", func() {
	It("allocates distinct message ids within the reserved range", func() {
		c := pipeConn()
		seen := map[uint16]bool{}
		for i := 0; i < 200; i++ {
			id := c.AllocMessageID()
			Expect(seen[id]).To(BeFalse(), "message id reused before release: %d", id)
			Expect(id).To(BeNumerically(">=", 17783))
			Expect(id).To(BeNumerically("<=", 35565))
			seen[id] = true
		}
	})

	It("reuses a released message id", func() {
		c := pipeConn()
		id := c.AllocMessageID()
		c.ReleaseMessageID(id)
		// draining the remaining range eventually has to hit id again;
		// instead just assert release doesn't panic and id becomes
		// available again by allocating until it reappears or budget runs out.
		found := false
		for i := 0; i < 100000 && !found; i++ {
			got := c.AllocMessageID()
			if got == id {
				found = true
			}
			c.ReleaseMessageID(got)
		}
		Expect(found).To(BeTrue())
	})

	It("evicts the oldest pending input once INPUT_LIMIT is reached", func() {
		cfg := config.Default()
		cfg.InputLimit = 1
		client, server := net.Pipe()
		defer client.Close()
		c := transport.NewConn(server, cfg, nil)

		ctx := context.Background()
		first, err := c.AwaitInput(ctx, 1, false)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan struct{})
		go func() {
			_, _ = c.AwaitInput(ctx, 2, false)
			close(done)
		}()

		Eventually(func() bool {
			select {
			case <-first.Done():
				return true
			default:
				return false
			}
		}, time.Second).Should(BeTrue())

		Eventually(done, time.Second).Should(BeClosed())
	})
})
