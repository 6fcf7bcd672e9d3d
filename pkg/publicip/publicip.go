package publicip

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/monshunter/kubeboot/pkg/log"
)

// Lookup resolves a machine's public IPv4 address.
type Lookup func() (string, error)

// NewLookup returns a Lookup backed by an external address-discovery
// service that answers with the caller's address in plain text.
func NewLookup(endpoint string) Lookup {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil

	return func() (string, error) {
		log.Debugf("resolving public IP via %s", endpoint)
		resp, err := client.Get(endpoint)
		if err != nil {
			return "", fmt.Errorf("public IP lookup via %s failed: %w", endpoint, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			return "", fmt.Errorf("public IP lookup via %s returned status %s", endpoint, resp.Status)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
		if err != nil {
			return "", fmt.Errorf("failed to read public IP response: %w", err)
		}

		addr := strings.TrimSpace(string(body))
		ip := net.ParseIP(addr)
		if ip == nil || ip.To4() == nil {
			return "", fmt.Errorf("public IP lookup via %s returned %q, not an IPv4 address", endpoint, addr)
		}
		return ip.String(), nil
	}
}
