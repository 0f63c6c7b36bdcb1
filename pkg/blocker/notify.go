package blocker

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Webhook delivers every decision to a configured endpoint as JSON.
// Delivery is fire and forget, failures only hit the log.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Webhook) Record(d Decision) {
	body, err := json.Marshal(d)
	if err != nil {
		log.Printf("failed to marshal decision %v for webhook: %v\n", d.ID, err)
		return
	}

	go func() {
		resp, err := n.client.Post(n.url, "application/json", bytes.NewBuffer(body))
		if err != nil {
			log.Printf("failed to deliver decision %v to %v: %v\n", d.ID, n.url, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			log.Printf("delivered decision %v to %v, but it reacted with http status: %v (%v)\n",
				d.ID, n.url, resp.StatusCode, http.StatusText(resp.StatusCode))
		}
	}()
}
