package testutil

import (
	"fmt"
	"net"
	"testing"
	"time"
)

const (
	// DefaultSAMAddress is the default SAM bridge address for tests.
	DefaultSAMAddress = "127.0.0.1:7656"

	// DefaultDialTimeout is the timeout for SAM connectivity checks.
	DefaultDialTimeout = 5 * time.Second
)

// CheckSAM checks that a SAM bridge is reachable at samAddr.
func CheckSAM(samAddr string) error {
	if samAddr == "" {
		samAddr = DefaultSAMAddress
	}
	conn, err := net.DialTimeout("tcp", samAddr, DefaultDialTimeout)
	if err != nil {
		return fmt.Errorf("SAM bridge unavailable at %s: %w\n"+
			"Integration tests require a running I2P router with SAM enabled.\n"+
			"Start your I2P router and ensure SAM is listening on port 7656.",
			samAddr, err)
	}
	conn.Close()
	return nil
}

// RequireSAM skips the test when no SAM bridge is reachable at samAddr.
// Pass an empty string for the default address.
func RequireSAM(t testing.TB, samAddr string) {
	t.Helper()
	if err := CheckSAM(samAddr); err != nil {
		t.Skipf("skipping: %v", err)
	}
}
