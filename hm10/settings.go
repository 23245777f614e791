package hm10

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/blelink/at"
)

const (
	// workTypeSettle is the pause after reading or writing IMME. The module
	// rejects a command that follows sooner.
	workTypeSettle = 500 * time.Millisecond
	// outputPinsTimeout bounds the AFTC exchange.
	outputPinsTimeout = 2000 * time.Millisecond
)

// DeviceInfo is a snapshot of the module settings.
type DeviceInfo struct {
	Name             string      `json:"name"`
	FirmwareVersion  string      `json:"firmwareVersion"`
	Address          string      `json:"address"`
	Role             at.Role     `json:"role"`
	BaudRate         at.BaudRate `json:"baudRate"`
	BondMode         at.BondMode `json:"bondMode"`
	WorkType         at.WorkType `json:"workType"`
	WhitelistEnabled bool        `json:"whitelistEnabled"`
	WhitelistAddress string      `json:"whitelistAddress"`
	LastConnected    string      `json:"lastConnected"`
}

func (d *Device) get(code, param, expect string) (string, error) {
	resp, err := d.trx.Execute(Command{Code: code, Query: true, Param: param, Expect: expect})
	if err != nil {
		return "", err
	}
	return at.ParseValue(expect, resp), nil
}

func (d *Device) set(code, param, expect string) error {
	_, err := d.trx.Execute(Command{Code: code, Param: param, Expect: expect})
	return err
}

// Probe checks that the module answers.
func (d *Device) Probe() error {
	_, err := d.trx.Execute(Command{Expect: at.OK})
	return err
}

// DeviceName returns the advertised name.
func (d *Device) DeviceName() (string, error) {
	return d.get(at.CmdName, "", at.NameResponse)
}

// SetDeviceName changes the advertised name.
func (d *Device) SetDeviceName(name string) error {
	return d.set(at.CmdName, name, at.OKSet)
}

// Address returns the module MAC address.
func (d *Device) Address() (string, error) {
	return d.get(at.CmdAddress, "", at.AddressResponse)
}

// FirmwareVersion returns the raw version reply.
func (d *Device) FirmwareVersion() (string, error) {
	return d.get(at.CmdVersion, "", "")
}

// Role reads the role stored in the module, which may differ from the
// configured one until the module is provisioned.
func (d *Device) Role() (at.Role, error) {
	v, err := d.get(at.CmdRole, "", at.OKGet)
	if err != nil {
		return 0, err
	}
	return at.ParseRoleCode(v)
}

func (d *Device) SetRole(r at.Role) error {
	return d.set(at.CmdRole, at.Code(r), at.OKSet)
}

func (d *Device) BaudRate() (at.BaudRate, error) {
	v, err := d.get(at.CmdBaudRate, "", at.OKGet)
	if err != nil {
		return 0, err
	}
	return at.ParseBaudRateCode(v)
}

// SetBaudRate changes the module UART speed. It takes effect after the next
// reset, so the host port must be reopened at the new speed.
func (d *Device) SetBaudRate(b at.BaudRate) error {
	return d.set(at.CmdBaudRate, at.Code(b), at.OKSet)
}

func (d *Device) WorkType() (at.WorkType, error) {
	v, err := d.get(at.CmdWorkType, "", at.OKGet)
	d.clock.Sleep(workTypeSettle)
	if err != nil {
		return 0, err
	}
	return at.ParseWorkTypeCode(v)
}

func (d *Device) SetWorkType(w at.WorkType) error {
	err := d.set(at.CmdWorkType, at.Code(w), at.OKSet)
	d.clock.Sleep(workTypeSettle)
	return err
}

// LastConnectedAddress returns the address the module reconnects to, or
// at.EmptyAddress.
func (d *Device) LastConnectedAddress() (string, error) {
	return d.get(at.CmdLastAddress, "", at.RaddResponse)
}

// ClearLastConnectedAddress makes the module forget its last peer.
func (d *Device) ClearLastConnectedAddress() error {
	return d.set(at.CmdClear, "", at.ClearResponse)
}

func (d *Device) WhitelistEnabled() (bool, error) {
	v, err := d.get(at.CmdWhitelistEnabled, "", at.OKGet)
	if err != nil {
		return false, err
	}
	return at.ParseBoolCode(v)
}

func (d *Device) SetWhitelistEnabled(enabled bool) error {
	return d.set(at.CmdWhitelistEnabled, at.BoolCode(enabled), at.OKSet)
}

// WhitelistAddress reads one whitelist slot.
func (d *Device) WhitelistAddress(slot at.WhitelistSlot) (string, error) {
	param, expect := at.WhitelistQuery(slot)
	return d.get(at.CmdWhitelist, param, expect)
}

// SetWhitelistAddress stores address in a whitelist slot.
func (d *Device) SetWhitelistAddress(slot at.WhitelistSlot, address string) error {
	if !validAddress(address) {
		return fmt.Errorf("whitelist address %q: %w", address, ErrNoPeerAddress)
	}
	return d.set(at.CmdWhitelist, at.WhitelistParam(slot, address), at.WhitelistAck)
}

func (d *Device) BondMode() (at.BondMode, error) {
	v, err := d.get(at.CmdBondMode, "", at.OKGet)
	if err != nil {
		return 0, err
	}
	return at.ParseBondModeCode(v)
}

func (d *Device) SetBondMode(m at.BondMode) error {
	return d.set(at.CmdBondMode, at.Code(m), at.OKSet)
}

// SetConnectedOutputStatePins sets the module PIO levels while connected,
// given as three hex digits.
func (d *Device) SetConnectedOutputStatePins(pinHex string) error {
	if len(pinHex) != 3 {
		return ErrInvalidPinHex
	}
	if _, err := hex.DecodeString("0" + pinHex); err != nil {
		return ErrInvalidPinHex
	}
	_, err := d.trx.Execute(Command{
		Code:    at.CmdOutputStatePins,
		Param:   pinHex,
		Expect:  at.OKSet,
		Timeout: outputPinsTimeout,
	})
	return err
}

// StartWork tells a module in manual start mode to start working.
func (d *Device) StartWork() error {
	return d.set(at.CmdStart, "", at.StartResponse)
}

// Info reads every setting. Settings that cannot be read are left at their
// zero value and reported in the joined error.
func (d *Device) Info() (DeviceInfo, error) {
	var (
		info DeviceInfo
		errs []error
		err  error
	)
	collect := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	info.Name, err = d.DeviceName()
	collect("name", err)
	info.FirmwareVersion, err = d.FirmwareVersion()
	collect("firmware version", err)
	info.BaudRate, err = d.BaudRate()
	collect("baud rate", err)
	info.BondMode, err = d.BondMode()
	collect("bond mode", err)
	info.Address, err = d.Address()
	collect("address", err)
	info.Role, err = d.Role()
	collect("role", err)
	info.WorkType, err = d.WorkType()
	collect("work type", err)
	info.WhitelistEnabled, err = d.WhitelistEnabled()
	collect("whitelist enabled", err)
	info.WhitelistAddress, err = d.WhitelistAddress(at.DefaultSlot)
	collect("whitelist address", err)
	info.LastConnected, err = d.LastConnectedAddress()
	collect("last connected address", err)

	return info, errors.Join(errs...)
}
