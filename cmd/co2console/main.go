// Command co2console follows the monitor's log stream on a serial port and
// prints one line per CO2 reading.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goburrow/serial"
	"github.com/urfave/cli"
)

var (
	portPath string
	baudRate int
	hexDump  bool
	csvPath  string
)

func main() {
	app := cli.NewApp()
	app.Name = "co2console"
	app.Usage = "follow a co2mon log stream over serial"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "port, p",
			Usage:       "serial device",
			Value:       "/dev/ttyACM0",
			Destination: &portPath,
		},
		cli.IntFlag{
			Name:        "baud, b",
			Usage:       "line speed",
			Value:       115200,
			Destination: &baudRate,
		},
		cli.BoolFlag{
			Name:        "hex",
			Usage:       "dump raw bytes instead of decoding log lines",
			Destination: &hexDump,
		},
		cli.StringFlag{
			Name:        "csv",
			Usage:       "append time,co2,status rows to `FILE`",
			Destination: &csvPath,
		},
	}
	app.Action = follow

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app.Name, err)
		os.Exit(1)
	}
}

func follow(ctx *cli.Context) error {
	port, err := serial.Open(&serial.Config{
		Address:  portPath,
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("open %s: %v", portPath, err), 1)
	}
	defer port.Close()

	in := patient{r: port}
	if hexDump {
		return dumpHex(os.Stdout, in)
	}

	c := &console{out: os.Stdout, now: time.Now}
	if csvPath != "" {
		f, err := os.OpenFile(csvPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer f.Close()
		c.record = newRecorder(f)
	}
	return c.run(in)
}
