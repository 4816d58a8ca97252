package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every plantpot topic.
const TopicPrefix = "plantpot"

// DefaultTelemetryTopic is where a pot publishes readings unless configured otherwise.
const DefaultTelemetryTopic = TopicPrefix + "/telemetry"

// ValidateTopicFilter checks a subscription filter.
//
// "+" must occupy a whole level and "#" must be the whole final level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: contains NUL", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q: '+' must occupy a whole level", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q: '#' must be the last level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// ValidatePublishTopic checks a topic name is publishable (no wildcards).
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q: wildcards not allowed when publishing", ErrInvalidTopic, topic)
	}
	return nil
}
