package ingest

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// Channel is the last topic level.
type Channel string

const (
	ChannelState Channel = mqtt.ChannelState
	ChannelEvent Channel = mqtt.ChannelEvent
	ChannelCmd   Channel = mqtt.ChannelCmd
)

// Route is a parsed device topic.
type Route struct {
	Domain   string
	Kind     device.Kind
	DeviceID string
	Channel  Channel
}

var domainKinds = map[string]device.Kind{
	mqtt.DomainLock:       device.KindLock,
	mqtt.DomainLighting:   device.KindLight,
	mqtt.DomainSmokeAlarm: device.KindAlarm,
}

// ParseTopic splits topic into a Route.
//
// Returns ErrMalformedTopic for anything outside home/, and
// ErrUnknownDomain for home/<domain>/<id>/<channel> topics whose domain
// is not handled.
func ParseTopic(topic string) (Route, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != mqtt.TopicPrefixHome {
		return Route{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	for _, p := range parts {
		if p == "" || p == "+" || p == "#" {
			return Route{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
		}
	}

	switch len(parts) {
	case 3:
		switch parts[2] {
		case mqtt.SensorLeafTelemetry, mqtt.SensorLeafTempHum:
			return Route{Domain: "sensor", Kind: device.KindSensor, DeviceID: parts[1], Channel: ChannelState}, nil
		}
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownDomain, topic)

	case 4:
		ch := Channel(parts[3])
		if ch != ChannelState && ch != ChannelEvent && ch != ChannelCmd {
			return Route{}, fmt.Errorf("%w: unknown channel in %q", ErrMalformedTopic, topic)
		}
		kind, ok := domainKinds[parts[1]]
		if !ok {
			return Route{}, fmt.Errorf("%w: %q", ErrUnknownDomain, parts[1])
		}
		return Route{Domain: parts[1], Kind: kind, DeviceID: parts[2], Channel: ch}, nil
	}

	return Route{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
}
