// Package kafka provides the kafka input and output plugins, bridging
// telemetry streams to and from Kafka topics.
package kafka

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"regexp"

	kctl "github.com/jbvmio/kafka"
	"github.com/Osman-OO/pipe/plugin"
	"github.com/pkg/errors"
)

var useKafkaVersion = kctl.VER210KafkaVersion

const defaultBuffer = 1000

// Register adds the kafka input and output plugins to the registry.
func Register(reg *plugin.Registry) error {
	if err := reg.Register(plugin.RoleInput, `kafka`, plugin.Registration{
		Defaults: plugin.Options{
			`group`:        `pipe`,
			`delete_group`: `no`,
			`start_oldest`: `no`,
			`threads`:      `1`,
		},
		Factory: NewInput,
	}); err != nil {
		return err
	}
	return reg.Register(plugin.RoleOutput, `kafka`, plugin.Registration{
		Factory: NewOutput,
	})
}

func clientID() string {
	hn, err := os.Hostname()
	if err != nil {
		hn = "undiscovered-host"
	}
	b := make([]byte, 6)
	rand.Read(b)
	return hn + `-` + hex.EncodeToString(b)
}

func deleteCG(client *kctl.KClient, group string) error {
	var found bool
	groups, errs := client.ListGroups()
	if len(errs) > 0 {
		return errors.Errorf("fetching existing group metadata: %v", errs[0])
	}
	for _, g := range groups {
		if g == group {
			found = true
			break
		}
	}
	if found {
		if err := client.RemoveGroup(group); err != nil {
			return errors.Wrap(err, "deleting existing group")
		}
	}
	return nil
}

// topicsExist returns true if every given topic exists on the cluster.
func topicsExist(client *kctl.KClient, topics ...string) bool {
	var matched int
	regex := makeRegex(topics...)
	tMeta, err := client.GetTopicMeta()
	if err != nil {
		return false
	}
	dupe := make(map[string]bool)
	for _, t := range tMeta {
		if !dupe[t.Topic] {
			dupe[t.Topic] = true
			if regex.MatchString(t.Topic) {
				matched++
			}
			if matched == len(topics) {
				return true
			}
		}
	}
	return false
}

func makeRegex(terms ...string) *regexp.Regexp {
	var regStr string
	switch len(terms) {
	case 0:
		regStr = ""
	case 1:
		regStr = `^(` + regexp.QuoteMeta(terms[0]) + `)$`
	default:
		regStr = `^(` + regexp.QuoteMeta(terms[0])
		for _, t := range terms[1:] {
			regStr += `|` + regexp.QuoteMeta(t)
		}
		regStr += `)$`
	}
	return regexp.MustCompile(regStr)
}

func filterUnique(vals []string) []string {
	var tmp []string
	dupe := make(map[string]bool)
	for _, v := range vals {
		if !dupe[v] {
			dupe[v] = true
			tmp = append(tmp, v)
		}
	}
	return tmp
}
