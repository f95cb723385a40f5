package emulator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// iputils and busybox both print a summary line such as
// "3 packets transmitted, 2 received, 33% packet loss" or
// "3 packets transmitted, 3 packets received, 0% packet loss".
var pingSummary = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)

// ParsePing extracts sent and received counts from ping output. A ping that
// ran but printed no summary, such as "connect: Network is unreachable" on a
// host without a route, counts as one sample sent and none received. Empty
// output is an error: nothing ran.
func ParsePing(out string) (sent, received int, err error) {
	m := pingSummary.FindStringSubmatch(out)
	if m == nil {
		if strings.TrimSpace(out) == "" {
			return 0, 0, errors.New("no ping output")
		}
		return 1, 0, nil
	}
	sent, _ = strconv.Atoi(m[1])
	received, _ = strconv.Atoi(m[2])
	if sent == 0 {
		return 0, 0, errors.New("ping sent no packets")
	}
	if received > sent {
		return 0, 0, errors.Errorf("ping received %d of %d packets", received, sent)
	}
	return sent, received, nil
}

// DeliveredFraction turns ping output into received/sent.
func DeliveredFraction(out string) (float64, error) {
	sent, received, err := ParsePing(out)
	if err != nil {
		return 0, err
	}
	return float64(received) / float64(sent), nil
}

// PingArgv is the echo test run on a source host.
func PingArgv(target string, samples int) []string {
	return []string{"ping", "-c", strconv.Itoa(samples), "-W", "1", target}
}
