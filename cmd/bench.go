// cmd/bench.go

package main

import (
	"hash/crc32"
	"io"

	"AveBuf/pkg/alloc"
	"AveBuf/pkg/stream"
	"AveBuf/pkg/utils"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

type benchResult struct {
	RunID      string
	Bytes      int64
	WriteMiBps float64
	ReadMiBps  float64
	UserCPU    float64
	SysCPU     float64
	Pool       alloc.Stats
}

func bench(c *cli.Context) error {
	setLoggerLevel(c)
	size, err := utils.ParseBytes(c.String("size"))
	if err != nil || size <= 0 {
		logger.Fatalf("invalid size %s", c.String("size"))
	}
	block, err := utils.ParseBytes(c.String("block"))
	if err != nil || block <= 0 {
		logger.Fatalf("invalid block %s", c.String("block"))
	}

	pool := alloc.NewPool(&alloc.Config{OffHeap: c.Bool("offheap")})
	s := stream.New(pool)
	defer s.Close()

	runID := uuid.New().String()
	logger.Debugf("bench %s: %d bytes in %d-byte appends", runID, size, block)

	progress, bar := utils.NewDynProgressBar("bench: ", c.Bool("quiet"))
	bar.SetTotal(size*2, false)

	payload := make([]byte, block)
	for i := range payload {
		payload[i] = byte(i)
	}

	table := crc32.MakeTable(crc32.Castagnoli)
	startUsage := utils.GetRusage()
	start := utils.Clock()
	var written int64
	var wsum uint32
	for written < size {
		p := payload
		if remain := size - written; remain < int64(len(p)) {
			p = p[:remain]
		}
		n, werr := s.Write(p)
		written += int64(n)
		bar.IncrBy(n)
		if werr != nil {
			return werr
		}
		wsum = crc32.Update(wsum, table, p)
	}
	writeElapsed := utils.Clock() - start

	if _, err = s.Seek(0, io.SeekStart); err != nil {
		return err
	}
	start = utils.Clock()
	buf := make([]byte, block)
	var read int64
	var rsum uint32
	for {
		n, rerr := s.Read(buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
		rsum = crc32.Update(rsum, table, buf[:n])
		read += int64(n)
		bar.IncrBy(n)
	}
	readElapsed := utils.Clock() - start
	bar.SetTotal(size*2, true)
	progress.Wait()

	if read != written || rsum != wsum {
		logger.Fatalf("read back %d bytes (crc %08x), wrote %d (crc %08x)",
			read, rsum, written, wsum)
	}

	utime, stime := utils.GetRusage().CPUUsage(startUsage)
	printJson(&benchResult{
		RunID:      runID,
		Bytes:      written,
		WriteMiBps: float64(written) / (1 << 20) / writeElapsed.Seconds(),
		ReadMiBps:  float64(read) / (1 << 20) / readElapsed.Seconds(),
		UserCPU:    utime,
		SysCPU:     stime,
		Pool:       pool.Stats(),
	})
	return nil
}

func benchFlags() *cli.Command {
	return &cli.Command{
		Name:   "bench",
		Usage:  "run append/read micro-benchmark on a chunked stream",
		Action: bench,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "size",
				Value: "64M",
				Usage: "total bytes to append",
			},
			&cli.StringFlag{
				Name:  "block",
				Value: "128K",
				Usage: "size of each append/read",
			},
			&cli.BoolFlag{
				Name:  "offheap",
				Usage: "back chunks with anonymous mappings",
			},
		},
	}
}
