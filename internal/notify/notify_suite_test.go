package notify_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"threadpulse.app/pulse/common/id"
)

func TestNotify(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notify Suite")
}

var _ = BeforeSuite(func() {
	// Initialize snowflake ID generator for tests
	err := id.Init(99)
	Expect(err).NotTo(HaveOccurred())
})
