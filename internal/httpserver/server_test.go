package httpserver_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tcp-load-balancer/internal/httpserver"
)

func TestHTTPServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HTTP Server Suite")
}

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	DescribeTable("server creation",
		func(addr string, ok bool) {
			srv, err := httpserver.New(addr, noop)
			if ok {
				Expect(err).NotTo(HaveOccurred())
				Expect(srv).NotTo(BeNil())
			} else {
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			}
		},
		Entry("host name", "localhost:9999", true),
		Entry("ip address", "127.0.0.1:9999", true),
		Entry("port only", ":9999", true),
		Entry("invalid address", "invalid:host:port", false),
		Entry("missing port", "localhost", false),
	)

	Context("server lifecycle", func() {
		It("serves requests and shuts down cleanly", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())

			srv, err := httpserver.New(ln.Addr().String(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("ok"))
			}))
			Expect(err).NotTo(HaveOccurred())

			served := make(chan error, 1)
			go func() {
				served <- srv.Serve(ln)
			}()

			var body string
			Eventually(func() error {
				res, err := http.Get("http://" + ln.Addr().String() + "/")
				if err != nil {
					return err
				}
				defer res.Body.Close()
				data, err := io.ReadAll(res.Body)
				body = string(data)
				return err
			}).Should(Succeed())
			Expect(body).To(Equal("ok"))

			Expect(srv.Shutdown(context.Background())).To(Succeed())
			Eventually(served).Should(Receive(BeNil()))
		})
	})
})
