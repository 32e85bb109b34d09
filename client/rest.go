package client

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alejzeis/strangerchat/common"

	"github.com/go-resty/resty/v2"
	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
)

type restClient struct {
	rest      *resty.Client
	serverURL string

	serverInfo common.InfoResponse
}

func createRestClient(serverURL string) *restClient {
	client := new(restClient)
	client.serverURL = strings.TrimRight(serverURL, "/")
	client.rest = resty.New().
		SetBaseURL(client.serverURL).
		SetTimeout(10*time.Second).
		SetHeader("User-Agent", common.SoftwareName+"/"+common.SoftwareVersion)
	return client
}

// get fetches path and decodes the JSON body into result
func (r *restClient) get(path string, result interface{}) error {
	response, err := r.rest.R().SetResult(result).Get(path)
	if err != nil {
		log.WithField("url", r.serverURL+path).WithError(err).Debug("REST request failed")
		return err
	}
	if response.IsError() {
		log.WithFields(log.Fields{
			"url":    r.serverURL + path,
			"status": response.StatusCode(),
			"body":   response.String(),
		}).Debug("REST request rejected")
		return fmt.Errorf("%s responded %s", path, response.Status())
	}
	return nil
}

// fetchInfo asks the server who it is and remembers the answer
func (r *restClient) fetchInfo() (common.InfoResponse, error) {
	var info common.InfoResponse
	if err := r.get("/info", &info); err != nil {
		return info, err
	}
	if info.Software != common.SoftwareName {
		return info, fmt.Errorf("%s is not a %s server", r.serverURL, common.SoftwareName)
	}
	if info.API != common.APIVersion {
		return info, fmt.Errorf("server speaks API version %d, this client speaks %d", info.API, common.APIVersion)
	}

	r.serverInfo = info
	return info, nil
}

func (r *restClient) fetchStats() (common.StatsResponse, error) {
	var stats common.StatsResponse
	err := r.get("/stats", &stats)
	return stats, err
}

func (r *restClient) fetchICEServers() ([]webrtc.ICEServer, error) {
	var servers common.ICEServersResponse
	err := r.get("/ice-servers", &servers)
	return servers.IceServers, err
}

// serverAddresses turns whatever the user typed into the REST base URL and the websocket endpoint.
// http maps to ws and https to wss; a bare host is assumed to be http. A trailing /ws is accepted.
func serverAddresses(raw string) (restBase string, wsURL string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid server URL: %s", raw)
	}

	var restScheme, wsScheme string
	switch u.Scheme {
	case "http", "ws":
		restScheme, wsScheme = "http", "ws"
	case "https", "wss":
		restScheme, wsScheme = "https", "wss"
	default:
		return "", "", fmt.Errorf("unsupported scheme %q in server URL", u.Scheme)
	}

	path := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/ws")
	restBase = (&url.URL{Scheme: restScheme, Host: u.Host, Path: path}).String()
	wsURL = (&url.URL{Scheme: wsScheme, Host: u.Host, Path: path + "/ws"}).String()
	return restBase, wsURL, nil
}
