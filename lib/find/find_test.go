// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package find

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

// sysfs builds a minimal /sys with one tty per device under root.
func sysfs(t *testing.T, devs map[string]map[string]string) string {
	t.Helper()
	root := t.TempDir()
	class := filepath.Join(root, "sys", "class", "tty")
	if err := os.MkdirAll(class, 0o755); err != nil {
		t.Fatal(err)
	}
	i := 0
	for tty, info := range devs {
		i++
		usbdev := filepath.Join(root, "sys", "devices", "pci0000:00", "usb1", "1-"+string(rune('0'+i)))
		iface := filepath.Join(usbdev, "1-"+string(rune('0'+i))+":1.0")
		dir := filepath.Join(iface, "tty", tty)
		if info == nil {
			dir = filepath.Join(root, "sys", "devices", "platform", "serial8250", "tty", tty)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(dir, filepath.Join(class, tty)); err != nil {
			t.Fatal(err)
		}
		if info == nil {
			continue
		}
		if err := os.Symlink(iface, filepath.Join(dir, "device")); err != nil {
			t.Fatal(err)
		}
		for name, v := range info {
			if err := os.WriteFile(filepath.Join(usbdev, name), []byte(v+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}

func Test_AllUsbTtys(t *testing.T) {
	root := sysfs(t, map[string]map[string]string{
		"ttyUSB0": {"manufacturer": "Prologix", "product": "GPIB-USB Controller", "serial": "PX9K2Q", "idVendor": "0403", "idProduct": "6001"},
		"ttyACM0": {"manufacturer": "Arduino (www.arduino.cc)", "product": "AR488", "serial": "7563"},
		"ttyS0":   nil,
	})
	log, hook := test.NewNullLogger()
	f := Finder{Root: root, Log: log}
	ttys, err := f.AllUsbTtys()
	if err != nil {
		t.Fatal(err)
	}
	if len(ttys) != 2 {
		t.Fatalf("found %d usb ttys:\n%s", len(ttys), ttys)
	}
	for _, ut := range ttys {
		switch ut.Dev {
		case "ttyUSB0":
			if ut.IDv != "0403" || ut.IDp != "6001" || ut.Serial != "PX9K2Q" {
				t.Errorf("ttyUSB0: %s", ut)
			}
		case "ttyACM0":
			if ut.Prod != "AR488" {
				t.Errorf("ttyACM0: %s", ut)
			}
		default:
			t.Errorf("unexpected tty %s", ut)
		}
	}
	if len(hook.Entries) != 0 {
		t.Errorf("logged %q", hook.LastEntry().Message)
	}
}

func Test_Find(t *testing.T) {
	root := sysfs(t, map[string]map[string]string{
		"ttyUSB0": {"manufacturer": "Prologix", "serial": "PX9K2Q"},
		"ttyACM0": {"manufacturer": "Arduino (www.arduino.cc)", "serial": "7563"},
	})
	f := Finder{Root: root}
	tests := []struct {
		name   string
		filter FilterFn
		want   string
		ok     bool
	}{
		{"prologix", PrologixFilter, "ttyUSB0", true},
		{"arduino", ArduinoFilter, "ttyACM0", true},
		{"serial", SerialFilter("7563"), "ttyACM0", true},
		{"no match", SerialFilter("nope"), "", false},
		{"ambiguous", nil, "", false},
		{"any", AnyFilter(SerialFilter("nope"), PrologixFilter), "ttyUSB0", true},
	}
	for _, tc := range tests {
		got, err := f.Find(tc.filter)
		if tc.ok != (err == nil) || got != tc.want {
			t.Errorf("%s: got %q, %v", tc.name, got, err)
		}
	}
}

func Test_FindMissingSysfs(t *testing.T) {
	if _, err := (Finder{Root: t.TempDir()}).Find(nil); err == nil {
		t.Error("expected an error without /sys/class/tty")
	}
}
