// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The dexmon command is a demonstration of the dexcom package for
// following the glucose readings of a Dexcom transmitter.
package main

import (
	"context"
	"flag"
	"image"
	"os"
	"os/signal"
	"strings"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/cgm/dexcom"
	"github.com/kortschak/cgm/sensor"
)

func main() {
	addr := flag.String("addr", "", "transmitter bluetooth address (default first transmitter matching serial)")
	serial := flag.String("serial", "", "transmitter serial number")
	model := flag.String("type", "g6", "transmitter type (g6, one or g7)")
	sniff := flag.Bool("sniff", false, "decode traffic without writing to the transmitter")
	verbose := flag.Bool("v", false, "log protocol detail")
	flag.Parse()
	typ, ok := map[string]sensor.Type{
		"g6":  sensor.DexcomG6,
		"one": sensor.DexcomONE,
		"g7":  sensor.DexcomG7,
	}[strings.ToLower(*model)]
	if *serial == "" || !ok {
		flag.Usage()
		os.Exit(2)
	}
	var macAddr bluetooth.Address
	if *addr != "" {
		err := macAddr.UnmarshalText([]byte(*addr))
		if err != nil {
			flag.Usage()
			os.Exit(2)
		}
	}

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	adapter := bluetooth.DefaultAdapter
	err := adapter.Enable()
	if err != nil {
		log.Fatalf("failed to enable bluetooth: %v", err)
	}

	log.Info("scanning...")
	var dev bluetooth.Device
	err = adapter.Scan(func(adapter *bluetooth.Adapter, found bluetooth.ScanResult) {
		if !isTarget(found, macAddr, *addr != "", *serial) {
			return
		}
		log.WithFields(logrus.Fields{
			"mac":  found.Address,
			"rssi": found.RSSI,
			"name": found.LocalName(),
		}).Info("found transmitter")
		dev, err = adapter.Connect(found.Address, bluetooth.ConnectionParams{})
		if err != nil {
			log.Errorf("failed to connect: %v", err)
			return
		}
		adapter.StopScan()
	})
	if err != nil {
		log.Fatalf("failed to scan: %v", err)
	}
	defer dev.Disconnect()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	update := make(chan image.Image)
	m, err := newMonitor(&dev, sensor.NewDexcom(typ, *serial), *sniff, logger{log}, update)
	if err != nil {
		log.Fatal(err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.run(ctx)
	})
	go func() {
		err := g.Wait()
		if err != nil && err != context.Canceled {
			log.Error(err)
		}
		if err := m.Close(); err != nil {
			log.Error(err)
		}
		os.Exit(0)
	}()

	go func() {
		w := new(app.Window)
		w.Option(app.Title("Glucose"), app.Size(296, 128))
		if err := loop(w, update); err != nil {
			log.Error(err)
		}
		cancel()
	}()
	app.Main()
}

// isTarget returns whether a scan result is the requested transmitter.
// Transmitters advertise a local name ending in the last two
// characters of their serial.
func isTarget(found bluetooth.ScanResult, addr bluetooth.Address, haveAddr bool, serial string) bool {
	if !dexcom.IsTransmitter(found) {
		return false
	}
	if haveAddr {
		return found.Address == addr
	}
	return strings.HasSuffix(found.LocalName(), serial[max(0, len(serial)-2):])
}

func loop(w *app.Window, update chan image.Image) error {
	expl := explorer.NewExplorer(w)
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))

	events := make(chan event.Event)
	ack := make(chan struct{})

	go func() {
		for {
			ev := w.Event()
			events <- ev
			<-ack
			if _, ok := ev.(app.DestroyEvent); ok {
				return
			}
		}
	}()
	var img image.Image
	var ops op.Ops
	for {
		select {
		case img = <-update:
			w.Invalidate()
		case e := <-events:
			expl.ListenEvents(e)
			switch e := e.(type) {
			case app.DestroyEvent:
				ack <- struct{}{}
				return e.Err
			case app.FrameEvent:
				gtx := app.NewContext(&ops, e)
				layout.Flex{Axis: layout.Vertical}.Layout(gtx,
					layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
						if img == nil {
							return material.Body1(th, "waiting for transmitter...").Layout(gtx)
						}
						return widget.Image{
							Src: paint.NewImageOp(img),
							Fit: widget.Contain,
						}.Layout(gtx)
					}),
				)
				e.Frame(gtx.Ops)
			}
			ack <- struct{}{}
		}
	}
}
