package transport_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cifrazia/cats-go/transport"
)

func echoHandler(_ context.Context, r *transport.Request) (*transport.Response, error) {
	return &transport.Response{Body: r.Body}, nil
}

var _ = Describe("Api registry", func() {
	var api *transport.Api

	BeforeEach(func() {
		api = transport.NewApi()
	})

	It("resolves a wildcard handler for any version", func() {
		Expect(api.Register(&transport.HandlerItem{ID: 1, Name: "echo", Callback: echoHandler})).To(Succeed())
		h, ok := api.Resolve(1, 0)
		Expect(ok).To(BeTrue())
		Expect(h.Name).To(Equal("echo"))
		h, ok = api.Resolve(1, 99)
		Expect(ok).To(BeTrue())
		Expect(h.Name).To(Equal("echo"))
	})

	It("rejects a second wildcard for the same handler id", func() {
		Expect(api.Register(&transport.HandlerItem{ID: 1, Name: "a", Callback: echoHandler})).To(Succeed())
		err := api.Register(&transport.HandlerItem{ID: 1, Name: "b", Callback: echoHandler})
		Expect(err).To(HaveOccurred())
	})

	It("rejects overlapping version ranges", func() {
		v1, v2, v3 := 1, 5, 3
		Expect(api.Register(&transport.HandlerItem{ID: 2, Name: "a", Version: &v1, EndVersion: &v2, Callback: echoHandler})).To(Succeed())
		err := api.Register(&transport.HandlerItem{ID: 2, Name: "b", Version: &v3, Callback: echoHandler})
		Expect(err).To(HaveOccurred())
	})

	It("dispatches to the non-overlapping range covering the requested version", func() {
		v1, v2 := 1, 4
		v3 := 5
		Expect(api.Register(&transport.HandlerItem{ID: 3, Name: "old", Version: &v1, EndVersion: &v2, Callback: echoHandler})).To(Succeed())
		Expect(api.Register(&transport.HandlerItem{ID: 3, Name: "new", Version: &v3, Callback: echoHandler})).To(Succeed())

		h, ok := api.Resolve(3, 2)
		Expect(ok).To(BeTrue())
		Expect(h.Name).To(Equal("old"))

		h, ok = api.Resolve(3, 10)
		Expect(ok).To(BeTrue())
		Expect(h.Name).To(Equal("new"))
	})

	It("auto-closes an open-ended predecessor when a later range is registered", func() {
		v1, v3, v4, v6 := 1, 3, 4, 6
		Expect(api.Register(&transport.HandlerItem{ID: 4, Name: "one", Version: &v1, Callback: echoHandler})).To(Succeed())
		Expect(api.Register(&transport.HandlerItem{ID: 4, Name: "three-four", Version: &v3, EndVersion: &v4, Callback: echoHandler})).To(Succeed())
		Expect(api.Register(&transport.HandlerItem{ID: 4, Name: "six", Version: &v6, Callback: echoHandler})).To(Succeed())

		for v, want := range map[int]string{0: "", 1: "one", 2: "one", 3: "three-four", 4: "three-four", 5: "", 6: "six", 10: "six"} {
			h, ok := api.Resolve(4, v)
			if want == "" {
				Expect(ok).To(BeFalse(), "version %d", v)
				continue
			}
			Expect(ok).To(BeTrue(), "version %d", v)
			Expect(h.Name).To(Equal(want), "version %d", v)
		}
	})

	It("reports no match for an unregistered handler id", func() {
		_, ok := api.Resolve(999, 0)
		Expect(ok).To(BeFalse())
	})
})
