// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package find locates the serial device of a USB GPIB controller by
// walking sysfs.
package find

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type FilterFn func(*Usbtty) bool

// PrologixFilter matches Prologix GPIB-USB controllers.
func PrologixFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Prologix") || strings.Contains(ut.Prod, "GPIB")
}

// ArduinoFilter matches AR488 boards.
func ArduinoFilter(ut *Usbtty) bool {
	return strings.Contains(ut.Mfg, "Arduino")
}

func SerialFilter(s string) func(ut *Usbtty) bool {
	return func(ut *Usbtty) bool { return ut.Serial == s }
}

// AnyFilter matches a device accepted by any of fs.
func AnyFilter(fs ...FilterFn) FilterFn {
	return func(ut *Usbtty) bool {
		for _, f := range fs {
			if f(ut) {
				return true
			}
		}
		return false
	}
}

// Find searches the live sysfs for a usb serial device. See Finder.Find.
func Find(filter FilterFn) (string, error) { return Finder{}.Find(filter) }

// Finder walks a sysfs tree. The zero value uses / and the standard logger.
type Finder struct {
	Root string
	Log  *logrus.Logger
}

func (f Finder) root() string {
	if f.Root == "" {
		return "/"
	}
	return f.Root
}

func (f Finder) log() *logrus.Logger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}

// Find searches for a usb serial device. If filter is not nil,
// it is used to narrow choices down. The first device for which
// it returns true (if any) is chosen.
func (f Finder) Find(filter FilterFn) (string, error) {
	ttys, err := f.AllUsbTtys()
	if err != nil {
		return "", err
	}
	if filter != nil {
		var match Usbttys
		for i := range ttys {
			if filter(&ttys[i]) {
				match = Usbttys{ttys[i]}
				break
			}
		}
		ttys = match
	}

	if len(ttys) == 0 {
		return "", errors.New("no matching ttys found")
	}
	if len(ttys) == 1 {
		return ttys[0].Dev, nil
	}
	return "", errors.Errorf("multiple ttys:\n%s", ttys)
}

type Usbtty struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u Usbtty) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type Usbttys []Usbtty

func (uts Usbttys) String() string {
	s := make([]string, 0, len(uts))
	for _, ut := range uts {
		s = append(s, ut.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys finds ttys on usb devices by following the symlinks in
// <root>/sys/class/tty.
func (f Finder) AllUsbTtys() (Usbttys, error) {
	var devs Usbttys
	root := f.root()
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	sct := filepath.Join(root, "sys", "class", "tty")
	entries, err := os.ReadDir(sct)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			// just in case there's anything in the dir that isn't a symlink
			continue
		}
		// we have a symlink like
		// /sys/class/tty/ttyACM0 ->
		// /sys/devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
		path := filepath.Join(sct, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			f.log().Warnf("evaluating symlink %s; skipping: %s", path, err)
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || !strings.Contains(rel, "usb") {
			continue
		}
		// device points up two levels, to the interface directory
		// /sys/devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0
		dev, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			f.log().Warnf("usb but lacking device subdir: %s: %s", abs, err)
		}
		// the descriptor files are one more level up
		ut := Usbtty{Dev: e.Name(), Path: abs}
		if err := readUsbInfo(filepath.Dir(dev), &ut); err != nil {
			f.log().Warnf("%s: %s", abs, err)
		}
		devs = append(devs, ut)
	}
	return devs, nil
}

// readUsbInfo reads product and vendor ids and the mfg/product/serial
// strings.
//
// returns last error encountered, ignoring os.ErrNotExist.
// errors do not prevent reading additional files or returning data collected.
func readUsbInfo(dev string, ut *Usbtty) (err error) {
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"idProduct", &ut.IDp},
		{"idVendor", &ut.IDv},
		{"manufacturer", &ut.Mfg},
		{"product", &ut.Prod},
		{"serial", &ut.Serial},
	} {
		b, rerr := os.ReadFile(filepath.Join(dev, f.name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		*f.dst = strings.TrimSpace(string(b))
	}
	return err
}
