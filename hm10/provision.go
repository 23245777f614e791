package hm10

import (
	"errors"
	"fmt"

	"i4.energy/across/blelink/at"
)

// connectedOutputPins is the AFTC value written during provisioning.
const connectedOutputPins = "200"

// Provision writes the settings a bonded pair needs into the module and
// resets it. It is meant to run once, before Begin.
//
// Failing to read the current baud rate aborts provisioning. Every other
// step is attempted even if an earlier one failed; failures of the role
// specific steps are joined into the returned error.
func (d *Device) Provision(baud at.BaudRate) error {
	d.logger.Info("provisioning module", "baudRate", baud.String())

	if err := d.SetConnectedOutputStatePins(connectedOutputPins); err != nil {
		d.logger.Warn("set connected output state pins failed", "error", err)
	}

	current, err := d.BaudRate()
	if err != nil {
		return fmt.Errorf("read baud rate: %w", err)
	}
	if current != baud {
		if err := d.SetBaudRate(baud); err != nil {
			d.logger.Warn("set baud rate failed", "from", current.String(), "to", baud.String(), "error", err)
		}
	}

	var errs []error
	step := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if d.config.Role == at.Central {
		step("set role", d.SetRole(at.Central))
		step("set work type", d.SetWorkType(at.ManualStart))
		step("disable whitelist", d.SetWhitelistEnabled(false))
		step("set bond mode", d.SetBondMode(at.NoAuth))
	} else {
		step("set role", d.SetRole(at.Peripheral))
		step("set work type", d.SetWorkType(at.AutoStart))
		step("enable whitelist", d.SetWhitelistEnabled(true))
		step("set whitelist address", d.SetWhitelistAddress(at.Slot1, d.config.PeerAddress))
		step("set bond mode", d.SetBondMode(at.AuthAndBond))
	}

	d.Reset()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	d.logger.Info("module provisioned")
	return nil
}
