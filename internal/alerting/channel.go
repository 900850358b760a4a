package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/logging"
)

// Notification is one rendered alert ready for delivery.
type Notification struct {
	Destination string
	Subject     string
	Body        string
	Record      *Record
}

// Channel delivers notifications to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
	Close() error
}

// Scheme identifies a notification transport.
type Scheme string

const (
	SchemeSNS     Scheme = "sns"
	SchemeKafka   Scheme = "kafka"
	SchemeNATS    Scheme = "nats"
	SchemeRedis   Scheme = "redis"
	SchemeWebhook Scheme = "webhook"
)

// snsARNPattern matches SNS topic ARNs in any partition.
var snsARNPattern = regexp.MustCompile(`^arn:aws[a-z-]*:sns:([a-z0-9-]+):(\d{12}):([A-Za-z0-9_-]{1,256}(\.fifo)?)$`)

// Destination is a parsed notification destination identifier.
//
//	arn:aws:sns:<region>:<account>:<topic>   Amazon SNS topic
//	kafka://<broker>[,<broker>...]/<topic>   Kafka topic
//	nats://[user:pass@]<host:port>/<subject> NATS subject
//	redis[s]://[user:pass@]<host:port>/<ch>  Redis PUBLISH channel
//	http[s]://...                            JSON webhook
type Destination struct {
	Scheme Scheme
	Raw    string
	// Addrs are broker or server addresses.
	Addrs []string
	// Target is the topic ARN, topic, subject, channel or webhook URL.
	Target   string
	Region   string
	Username string
	Password string
	TLS      bool
}

// ParseDestination parses a destination identifier. An empty identifier returns
// ErrNoDestination.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, sentryerr.ErrNoDestination
	}

	if strings.HasPrefix(raw, "arn:") {
		m := snsARNPattern.FindStringSubmatch(raw)
		if m == nil {
			return Destination{}, fmt.Errorf("%w: not an SNS topic ARN: %s", sentryerr.ErrUnsupportedDestination, raw)
		}
		return Destination{Scheme: SchemeSNS, Raw: raw, Target: raw, Region: m[1]}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %s", sentryerr.ErrUnsupportedDestination, logging.MaskURL(raw))
	}

	d := Destination{Raw: raw}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("%w: webhook URL has no host", sentryerr.ErrUnsupportedDestination)
		}
		d.Scheme = SchemeWebhook
		d.Target = raw
		return d, nil
	case "kafka":
		d.Scheme = SchemeKafka
		d.Addrs = splitHosts(u.Host)
	case "nats", "tls":
		d.Scheme = SchemeNATS
		d.TLS = u.Scheme == "tls"
		d.Addrs = []string{u.Scheme + "://" + u.Host}
	case "redis", "rediss":
		d.Scheme = SchemeRedis
		d.TLS = u.Scheme == "rediss"
		d.Addrs = []string{u.Host}
	default:
		return Destination{}, fmt.Errorf("%w: unknown scheme %q", sentryerr.ErrUnsupportedDestination, u.Scheme)
	}

	d.Target = strings.Trim(u.Path, "/")
	if len(d.Addrs) == 0 || u.Host == "" {
		return Destination{}, fmt.Errorf("%w: %s destination has no host", sentryerr.ErrUnsupportedDestination, d.Scheme)
	}
	if d.Target == "" {
		return Destination{}, fmt.Errorf("%w: %s destination has no topic, subject or channel", sentryerr.ErrUnsupportedDestination, d.Scheme)
	}
	return d, nil
}

// String returns the destination with credentials and webhook paths hidden.
func (d Destination) String() string {
	return logging.MaskURL(d.Raw)
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// payload returns the machine-readable message for n: the record as JSON, or the
// rendered body when no record is attached.
func payload(n *Notification) ([]byte, error) {
	if n.Record == nil {
		return []byte(n.Body), nil
	}
	data, err := json.Marshal(n.Record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert: %w", err)
	}
	return data, nil
}
