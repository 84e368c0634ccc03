// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/AlexSenchenko/ProbQA/pkg/pqa"
)

// Snapshot layout, all little-endian: magic, version, engine uuid,
// capacities (answers, questions, targets), initial amount, total
// questions asked; then A, D, B row-major as IEEE-754 doubles; then the
// question and target gap bitmaps, each as a word count plus words.
var kbMagic = [4]byte{'P', 'Q', 'A', '1'}

// kbFormatVersion is bumped whenever the layout changes; load rejects
// any other value.
const kbFormatVersion uint32 = 2

const fileBufSize = 1 << 20

// kbHeader is the fixed-size prefix of a snapshot.
type kbHeader struct {
	Magic      [4]byte
	Version    uint32
	EngineID   [16]byte
	NAnswers   uint64
	NQuestions uint64
	NTargets   uint64
	InitAmount float64
	NAsked     uint64
}

// SaveKB implements pqa.Engine.
func (e *CpuEngine) SaveKB(path string, progress pqa.ProgressReporter) error {
	done, err := e.enterMaintenance()
	if err != nil {
		return err
	}
	defer done()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating KB snapshot: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, fileBufSize)
	if err := e.writeSnapshot(w, progress); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing KB snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing KB snapshot: %w", err)
	}
	e.log.Info("KB saved", "engine_id", e.id.String(), "path", path)
	return nil
}

func (e *CpuEngine) writeSnapshot(w io.Writer, progress pqa.ProgressReporter) error {
	hdr := kbHeader{
		Magic:      kbMagic,
		Version:    kbFormatVersion,
		EngineID:   e.id,
		NAnswers:   uint64(e.kb.nAnswers),
		NQuestions: uint64(e.kb.qCap()),
		NTargets:   uint64(e.kb.tCap()),
		InitAmount: e.initAmount,
		NAsked:     e.nQuestionsAsked.Load(),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("writing KB header: %w", err)
	}

	total := len(e.kb.a) + len(e.kb.d) + 1
	written := 0
	tick := func() {
		written++
		if progress != nil && written%1024 == 0 {
			progress(float64(written) / float64(total))
		}
	}
	for _, row := range e.kb.a {
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("writing A: %w", err)
		}
		tick()
	}
	for _, row := range e.kb.d {
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("writing D: %w", err)
		}
		tick()
	}
	if err := binary.Write(w, binary.LittleEndian, e.kb.b); err != nil {
		return fmt.Errorf("writing B: %w", err)
	}

	if err := writeBitmap(w, e.questionGaps.Words()); err != nil {
		return fmt.Errorf("writing question gaps: %w", err)
	}
	if err := writeBitmap(w, e.targetGaps.Words()); err != nil {
		return fmt.Errorf("writing target gaps: %w", err)
	}
	if progress != nil {
		progress(1)
	}
	return nil
}

func writeBitmap(w io.Writer, words []uint64) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(words))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, words)
}

func readBitmap(r io.Reader) ([]uint64, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > 1<<32 {
		return nil, fmt.Errorf("gap bitmap of %d words: %w", n, pqa.ErrFormatMismatch)
	}
	words := make([]uint64, n)
	if err := binary.Read(r, binary.LittleEndian, words); err != nil {
		return nil, err
	}
	return words, nil
}

// SnapshotInfo is the decoded header of a KB snapshot file.
type SnapshotInfo struct {
	EngineID   uuid.UUID
	Version    uint32
	Dims       pqa.EngineDimensions
	InitAmount float64
	NAsked     uint64
}

// ReadSnapshotInfo decodes and validates a snapshot header without
// loading the tables.
//
// Errors: pqa.ErrFormatMismatch, filesystem errors.
func ReadSnapshotInfo(path string) (SnapshotInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("opening KB snapshot: %w", err)
	}
	defer f.Close()

	hdr, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{
		EngineID: uuid.UUID(hdr.EngineID),
		Version:  hdr.Version,
		Dims: pqa.EngineDimensions{
			Answers:   pqa.ID(hdr.NAnswers),
			Questions: pqa.ID(hdr.NQuestions),
			Targets:   pqa.ID(hdr.NTargets),
		},
		InitAmount: hdr.InitAmount,
		NAsked:     hdr.NAsked,
	}, nil
}

// LoadKB implements pqa.Engine. The snapshot must agree with the
// engine's current dimensions; use LoadCpuEngine to construct an engine
// directly from a snapshot of unknown shape.
func (e *CpuEngine) LoadKB(path string, progress pqa.ProgressReporter) error {
	done, err := e.enterMaintenance()
	if err != nil {
		return err
	}
	defer done()

	if n := e.ActiveQuizCount(); n > 0 {
		return fmt.Errorf("%d quizzes outstanding: %w", n, pqa.ErrInvalidArgument)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening KB snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, fileBufSize)

	hdr, err := readHeader(r)
	if err != nil {
		return err
	}
	if pqa.ID(hdr.NAnswers) != e.kb.nAnswers ||
		pqa.ID(hdr.NQuestions) != e.kb.qCap() ||
		pqa.ID(hdr.NTargets) != e.kb.tCap() {
		return fmt.Errorf("snapshot dims %dx%dx%d, engine dims %dx%dx%d: %w",
			hdr.NAnswers, hdr.NQuestions, hdr.NTargets,
			e.kb.nAnswers, e.kb.qCap(), e.kb.tCap(), pqa.ErrFormatMismatch)
	}

	if err := e.readTables(r, progress); err != nil {
		return err
	}

	e.id = uuid.UUID(hdr.EngineID)
	e.initAmount = hdr.InitAmount
	e.nQuestionsAsked.Store(hdr.NAsked)
	e.log.Info("KB loaded", "engine_id", e.id.String(), "path", path)
	return nil
}

func readHeader(r io.Reader) (kbHeader, error) {
	var hdr kbHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, fmt.Errorf("reading KB header: %w", err)
	}
	if hdr.Magic != kbMagic {
		return hdr, fmt.Errorf("bad magic %q: %w", hdr.Magic[:], pqa.ErrFormatMismatch)
	}
	if hdr.Version != kbFormatVersion {
		return hdr, fmt.Errorf("snapshot version %d, supported %d: %w",
			hdr.Version, kbFormatVersion, pqa.ErrFormatMismatch)
	}
	if hdr.NAnswers == 0 || hdr.NTargets == 0 {
		return hdr, fmt.Errorf("zero dimension in header: %w", pqa.ErrFormatMismatch)
	}
	if !(hdr.InitAmount > 0) || math.IsInf(hdr.InitAmount, 0) {
		return hdr, fmt.Errorf("initial amount %v: %w", hdr.InitAmount, pqa.ErrFormatMismatch)
	}
	return hdr, nil
}

// readTables fills the engine's existing tables and trackers from r.
// Caller holds the exclusive KB lock and has validated the header.
func (e *CpuEngine) readTables(r io.Reader, progress pqa.ProgressReporter) error {
	total := len(e.kb.a) + len(e.kb.d) + 1
	read := 0
	tick := func() {
		read++
		if progress != nil && read%1024 == 0 {
			progress(float64(read) / float64(total))
		}
	}
	for _, row := range e.kb.a {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("reading A: %w", err)
		}
		tick()
	}
	for _, row := range e.kb.d {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("reading D: %w", err)
		}
		tick()
	}
	if err := binary.Read(r, binary.LittleEndian, e.kb.b); err != nil {
		return fmt.Errorf("reading B: %w", err)
	}

	qWords, err := readBitmap(r)
	if err != nil {
		return fmt.Errorf("reading question gaps: %w", err)
	}
	if err := e.questionGaps.LoadWords(qWords); err != nil {
		return err
	}
	tWords, err := readBitmap(r)
	if err != nil {
		return fmt.Errorf("reading target gaps: %w", err)
	}
	if err := e.targetGaps.LoadWords(tWords); err != nil {
		return err
	}
	if progress != nil {
		progress(1)
	}
	return nil
}
