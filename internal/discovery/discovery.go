// Package discovery implements the one-shot bootstrap read of every candidate slave's
// self-description block, plus the register_slave control operation that performs the same read
// for a single slave added later.
package discovery

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldmon/monitor/internal/descriptor"
	"github.com/fieldmon/monitor/internal/gwbus"
	"github.com/fieldmon/monitor/internal/registry"
)

// Timeout is the fixed 2s budget for a discovery read, per the discovery flow.
const Timeout = 2 * time.Second

// Bootstrap issues a blocking 8-register read at address 0 for every ID in candidates, and
// upserts the resulting sensor into reg. Failures are skipped, not retried; the FailureGovernor
// handles slaves that never respond to later scheduled traffic. Bootstrap self-terminates after
// one pass over candidates.
func Bootstrap(client *gwbus.Client, reg *registry.Registry, candidates []int, logger *logrus.Logger) {
	for _, slaveID := range candidates {
		if err := RegisterSlave(client, reg, slaveID); err != nil {
			logger.WithFields(logrus.Fields{"slave": slaveID}).WithError(err).Info("slave did not respond to discovery")
		}
	}
}

// RegisterSlave performs the discovery read for one slave and upserts the result, used both by
// Bootstrap and by the gateway's register_slave control operation.
func RegisterSlave(client *gwbus.Client, reg *registry.Registry, slaveID int) error {
	result, err := client.ReadRegisters(slaveID, -1, 0, descriptor.RegisterCount, Timeout)
	if err != nil {
		return err
	}
	regs := make([]uint16, descriptor.RegisterCount)
	for i, v := range result.Payload {
		regs[i] = uint16(v)
	}
	sensor, err := descriptor.Decode(regs)
	if err != nil {
		return err
	}
	reg.UpsertSensor(slaveID, sensor)
	return nil
}
