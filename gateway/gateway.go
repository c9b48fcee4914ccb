/*
Package gateway downloads transaction data from an Arweave gateway.

A gateway serves the data of a transaction at <host>/tx/<id>/data as base64
URL encoded text without padding, and the confirmation status at
<host>/tx/<id>/status. The Connection type knows how to use both.
*/
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// Exported errors
var (
	ErrBadURL         = errors.New("gateway URL must be absolute http or https")
	ErrNotFound       = errors.New("transaction not found on gateway")
	ErrPending        = errors.New("transaction is pending")
	ErrUnexpectedResp = errors.New("unexpected response code")
	ErrEnvelope       = errors.New("data is not base64url encoded")
)

// A Connection talks to a single gateway. It can be shared between multiple
// goroutines.
type Connection struct {
	// The gateway this connection is to, without a trailing slash
	HostURL string

	client *http.Client
}

// New returns a Connection to the gateway at hostURL, e.g.
// "https://arweave.net".
func New(hostURL string) (*Connection, error) {
	u, err := url.Parse(hostURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrBadURL
	}
	return &Connection{
		HostURL: strings.TrimSuffix(hostURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Minute, // arbitrary
		},
	}, nil
}

// Download returns the decoded data of the transaction txid.
func (c *Connection) Download(ctx context.Context, txid string) ([]byte, error) {
	body, err := c.get(ctx, "/tx/"+url.PathEscape(txid)+"/data")
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(body)
}

// DecodeEnvelope removes the base64url encoding a gateway puts on
// transaction data. Padding and surrounding whitespace are tolerated.
func DecodeEnvelope(body []byte) ([]byte, error) {
	body = bytes.TrimSpace(body)
	body = bytes.TrimRight(body, "=")
	result := make([]byte, base64.RawURLEncoding.DecodedLen(len(body)))
	n, err := base64.RawURLEncoding.Decode(result, body)
	if err != nil {
		return nil, errors.Wrap(ErrEnvelope, err.Error())
	}
	return result[:n], nil
}

// A Status describes where a confirmed transaction was mined.
type Status struct {
	BlockHeight   int64
	BlockHash     string
	Confirmations int64
}

// Status returns the confirmation status of txid. It returns ErrPending if
// the transaction has not been mined yet.
func (c *Connection) Status(ctx context.Context, txid string) (Status, error) {
	var result Status
	body, err := c.get(ctx, "/tx/"+url.PathEscape(txid)+"/status")
	if err != nil {
		return result, err
	}
	v, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return result, errors.Wrapf(err, "status of %s", txid)
	}
	result.BlockHeight, err = v.GetInt64("block_height")
	if err != nil {
		return result, errors.Wrapf(err, "status of %s", txid)
	}
	result.BlockHash, _ = v.GetString("block_indep_hash")
	result.Confirmations, _ = v.GetInt64("number_of_confirmations")
	return result, nil
}

// get returns the body of a successful GET of path.
func (c *Connection) get(ctx context.Context, path string) ([]byte, error) {
	path = c.HostURL + path
	req, err := http.NewRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case 200:
		break
	case 202:
		return nil, ErrPending
	case 404:
		log.Println("returned 404", path)
		return nil, ErrNotFound
	default:
		return nil, errors.Wrap(ErrUnexpectedResp, fmt.Sprintf("received status %d from %s", resp.StatusCode, path))
	}
	return ioutil.ReadAll(resp.Body)
}
