package cdse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultChecksumURL is the OData product metadata root used to fetch the
// authoritative MD5 checksum.
const DefaultChecksumURL = "https://catalogue.dataspace.copernicus.eu"

// ChecksumClient implements ports.ChecksumClient against the OData
// Products(<id>) endpoint, per
// original_source/lambdas/downloader/handler.py:get_image_checksum.
type ChecksumClient struct {
	httpClient  *http.Client
	checksumURL string
}

// NewChecksumClient builds a ChecksumClient. checksumURL defaults to
// DefaultChecksumURL when empty.
func NewChecksumClient(checksumURL string, httpClient *http.Client) *ChecksumClient {
	if checksumURL == "" {
		checksumURL = DefaultChecksumURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChecksumClient{httpClient: httpClient, checksumURL: checksumURL}
}

type productMetadata struct {
	Value []struct {
		Checksum []struct {
			Algorithm string `json:"Algorithm"`
			Value     string `json:"Value"`
		} `json:"Checksum"`
	} `json:"value"`
}

// GetChecksum fetches the authoritative MD5 checksum for granuleID.
func (c *ChecksumClient) GetChecksum(ctx context.Context, granuleID string) (string, error) {
	reqURL := fmt.Sprintf("%s/odata/v1/Products(%s)", c.checksumURL, granuleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build checksum request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch checksum metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch checksum metadata: unexpected status %d", resp.StatusCode)
	}

	var meta productMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode checksum metadata: %w", err)
	}
	if len(meta.Value) == 0 {
		return "", fmt.Errorf("no product metadata returned for %s", granuleID)
	}

	for _, checksum := range meta.Value[0].Checksum {
		if checksum.Algorithm == "MD5" {
			return checksum.Value, nil
		}
	}
	return "", fmt.Errorf("no MD5 checksum present for %s", granuleID)
}
