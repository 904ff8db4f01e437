// cmd/dump.go

package main

import (
	"fmt"
	"io"
	"os"

	"AveBuf/pkg/alloc"
	"AveBuf/pkg/compress"
	"AveBuf/pkg/stream"
	"AveBuf/pkg/utils"
	"github.com/juju/ratelimit"
	"github.com/urfave/cli/v2"
)

type limitedWriter struct {
	io.Writer
	bucket *ratelimit.Bucket
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n, err := l.Writer.Write(p)
	if l.bucket != nil {
		l.bucket.Wait(int64(n))
	}
	return n, err
}

func dump(c *cli.Context) error {
	setLoggerLevel(c)
	if c.Args().Len() < 2 {
		return fmt.Errorf("SRC and DST are required")
	}
	compressor := compress.NewCompressor(c.String("compress"))
	if compressor == nil {
		logger.Fatalf("Unsupported compress algorithm: %s", c.String("compress"))
	}

	in, err := os.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer in.Close()

	s := stream.New(alloc.NewPool(nil))
	defer s.Close()
	n, err := io.Copy(s, in)
	if err != nil {
		return err
	}

	out, err := os.Create(c.Args().Get(1))
	if err != nil {
		return err
	}
	defer out.Close()
	var w io.Writer = out
	if bw := c.String("bandwidth"); bw != "" {
		limit, err := utils.ParseBytes(bw)
		if err != nil || limit <= 0 {
			logger.Fatalf("invalid bandwidth %s", bw)
		}
		w = &limitedWriter{out, ratelimit.NewBucketWithRate(float64(limit), limit)}
	}

	if compressor.Name() != "none" {
		data, err := s.Bytes()
		if err != nil {
			return err
		}
		dst := make([]byte, compressor.CompressBound(len(data)))
		m, err := compressor.Compress(dst, data)
		if err != nil {
			return err
		}
		if _, err = w.Write(dst[:m]); err != nil {
			return err
		}
		logger.Infof("dumped %d bytes (%d after %s) to %s", n, m, compressor.Name(), c.Args().Get(1))
	} else {
		m, err := s.WriteTo(w)
		if err != nil {
			return err
		}
		logger.Infof("dumped %d bytes to %s", m, c.Args().Get(1))
	}
	return out.Sync()
}

func dumpFlags() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "copy a file through a chunked stream",
		ArgsUsage: "SRC DST",
		Action:    dump,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "compress",
				Value: "none",
				Usage: "compression algorithm (lz4, zstd, none)",
			},
			&cli.StringFlag{
				Name:  "bandwidth",
				Usage: "limit write speed in bytes per second (e.g. 4M)",
			},
		},
	}
}
