// Package cloud loads timestamped range-sensor point clouds and sensor
// trajectories from text files, pairing each sample with an interpolated
// sensor origin for ray integration.
package cloud

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Sample is one sensor return: the sensor origin at capture time and the
// surface point it observed, both in the global frame.
type Sample struct {
	Time   float64
	Origin r3.Vec
	Point  r3.Vec
}

// Loader yields batches of samples in time order. Next returns io.EOF when
// the stream is exhausted; the returned slice is valid until the next
// call.
type Loader interface {
	Next(maxSamples int) ([]Sample, error)
	Close() error
}

// trajectoryPoint is one timestamped sensor position.
type trajectoryPoint struct {
	time float64
	pos  r3.Vec
}

// Trajectory interpolates the sensor position over time from a sequence
// of timestamped positions.
type Trajectory struct {
	points []trajectoryPoint
}

// LoadTrajectory reads a whitespace-separated trajectory file with one
// "time x y z" record per line. Lines starting with '#' and trailing
// columns are ignored. Records are sorted by time.
func LoadTrajectory(path string) (*Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory: %w", err)
	}
	defer f.Close()

	t := &Trajectory{}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields, skip := splitRecord(sc.Text())
		if skip {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("trajectory %s:%d: want at least 4 columns, got %d", path, line, len(fields))
		}
		vals, err := parseFloats(fields[:4])
		if err != nil {
			return nil, fmt.Errorf("trajectory %s:%d: %w", path, line, err)
		}
		t.points = append(t.points, trajectoryPoint{
			time: vals[0],
			pos:  r3.Vec{X: vals[1], Y: vals[2], Z: vals[3]},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trajectory %s: %w", path, err)
	}
	if len(t.points) == 0 {
		return nil, fmt.Errorf("trajectory %s: no records", path)
	}
	sort.Slice(t.points, func(i, j int) bool { return t.points[i].time < t.points[j].time })
	return t, nil
}

// Position returns the sensor position at time, linearly interpolated
// between the bracketing trajectory points and clamped to the trajectory
// endpoints outside its time span.
func (t *Trajectory) Position(time float64) r3.Vec {
	pts := t.points
	if time <= pts[0].time {
		return pts[0].pos
	}
	last := pts[len(pts)-1]
	if time >= last.time {
		return last.pos
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].time >= time })
	a, b := pts[i-1], pts[i]
	span := b.time - a.time
	if span <= 0 {
		return b.pos
	}
	f := (time - a.time) / span
	return r3.Add(a.pos, r3.Scale(f, r3.Sub(b.pos, a.pos)))
}

// TextLoader reads "time x y z" cloud records and pairs each with a
// sensor origin. With a trajectory the origin is interpolated per sample;
// without one a fixed origin is used.
type TextLoader struct {
	f          *os.File
	sc         *bufio.Scanner
	trajectory *Trajectory
	origin     r3.Vec
	line       int
	batch      []Sample
}

// OpenTextLoader opens a cloud file. trajectory may be nil, in which case
// fixedOrigin is used for every sample.
func OpenTextLoader(path string, trajectory *Trajectory, fixedOrigin r3.Vec) (*TextLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cloud: %w", err)
	}
	return &TextLoader{
		f:          f,
		sc:         bufio.NewScanner(f),
		trajectory: trajectory,
		origin:     fixedOrigin,
	}, nil
}

// Next implements Loader.
func (l *TextLoader) Next(maxSamples int) ([]Sample, error) {
	l.batch = l.batch[:0]
	for len(l.batch) < maxSamples && l.sc.Scan() {
		l.line++
		fields, skip := splitRecord(l.sc.Text())
		if skip {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("cloud %s:%d: want at least 4 columns, got %d", l.f.Name(), l.line, len(fields))
		}
		vals, err := parseFloats(fields[:4])
		if err != nil {
			return nil, fmt.Errorf("cloud %s:%d: %w", l.f.Name(), l.line, err)
		}
		s := Sample{
			Time:  vals[0],
			Point: r3.Vec{X: vals[1], Y: vals[2], Z: vals[3]},
		}
		if l.trajectory != nil {
			s.Origin = l.trajectory.Position(s.Time)
		} else {
			s.Origin = l.origin
		}
		l.batch = append(l.batch, s)
	}
	if err := l.sc.Err(); err != nil {
		return nil, fmt.Errorf("read cloud %s: %w", l.f.Name(), err)
	}
	if len(l.batch) == 0 {
		return nil, io.EOF
	}
	return l.batch, nil
}

// Close implements Loader.
func (l *TextLoader) Close() error { return l.f.Close() }

func splitRecord(line string) (fields []string, skip bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, true
	}
	return strings.Fields(line), false
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
