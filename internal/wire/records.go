package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/slonigiraf/slonledger/internal/record"
)

// Positional record payloads. Each record type is a fixed, ordered
// comma-delimited field list; hex and id fields never contain commas,
// which encodeFields enforces.

const (
	letterFieldCount    = 12
	insuranceFieldCount = 15
)

func encodeFields(fields []string) (string, error) {
	for i, f := range fields {
		if strings.Contains(f, ",") {
			return "", fmt.Errorf("field %d contains a comma: %q", i, f)
		}
	}
	return strings.Join(fields, ","), nil
}

func letterFields(l record.Letter) []string {
	return []string{
		l.WorkerID,
		l.KnowledgeID,
		l.CID,
		l.Lesson,
		l.Genesis,
		strconv.FormatUint(uint64(l.LetterNumber), 10),
		strconv.FormatUint(l.Block, 10),
		string(l.Referee),
		string(l.Worker),
		record.AmountString(l.Amount),
		string(l.SignOverPrivateData),
		string(l.SignOverReceipt),
	}
}

// encodeLetter renders a letter as its positional payload.
func encodeLetter(l record.Letter) (string, error) {
	return encodeFields(letterFields(l))
}

// encodeInsurance renders an insurance: the letter fields followed by
// the employer-binding tail.
func encodeInsurance(ins record.Insurance) (string, error) {
	fields := append(letterFields(ins.Letter),
		strconv.FormatUint(ins.BlockAllowed, 10),
		string(ins.Employer),
		string(ins.WorkerSign),
	)
	return encodeFields(fields)
}

func parseLetterFields(fields []string) (record.Letter, error) {
	var l record.Letter
	l.WorkerID = fields[0]
	l.KnowledgeID = fields[1]
	l.CID = fields[2]
	l.Lesson = fields[3]
	l.Genesis = fields[4]

	num, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil {
		return record.Letter{}, fmt.Errorf("letter number: %w", err)
	}
	l.LetterNumber = uint32(num)

	if l.Block, err = strconv.ParseUint(fields[6], 10, 64); err != nil {
		return record.Letter{}, fmt.Errorf("block: %w", err)
	}

	if l.Referee, err = record.ParsePublicKey(fields[7]); err != nil {
		return record.Letter{}, err
	}
	if l.Worker, err = record.ParsePublicKey(fields[8]); err != nil {
		return record.Letter{}, err
	}

	amount, ok := record.ParseAmount(fields[9])
	if !ok {
		return record.Letter{}, fmt.Errorf("invalid amount %q", fields[9])
	}
	l.Amount = amount

	if l.SignOverPrivateData, err = record.ParseSignature(fields[10]); err != nil {
		return record.Letter{}, err
	}
	if l.SignOverReceipt, err = record.ParseSignature(fields[11]); err != nil {
		return record.Letter{}, err
	}

	l.Valid = true
	return l, nil
}

// decodeLetter parses a positional letter payload.
func decodeLetter(payload string) (record.Letter, error) {
	fields := strings.Split(payload, ",")
	if len(fields) != letterFieldCount {
		return record.Letter{}, malformedRecord("letter: want %d fields, got %d", letterFieldCount, len(fields))
	}
	l, err := parseLetterFields(fields)
	if err != nil {
		return record.Letter{}, malformedRecord("letter: %v", err)
	}
	return l, nil
}

// decodeInsurance parses a positional insurance payload.
func decodeInsurance(payload string) (record.Insurance, error) {
	fields := strings.Split(payload, ",")
	if len(fields) != insuranceFieldCount {
		return record.Insurance{}, malformedRecord("insurance: want %d fields, got %d", insuranceFieldCount, len(fields))
	}

	l, err := parseLetterFields(fields[:letterFieldCount])
	if err != nil {
		return record.Insurance{}, malformedRecord("insurance: %v", err)
	}

	var ins record.Insurance
	ins.Letter = l

	if ins.BlockAllowed, err = strconv.ParseUint(fields[12], 10, 64); err != nil {
		return record.Insurance{}, malformedRecord("insurance: block allowed: %v", err)
	}
	if ins.Employer, err = record.ParsePublicKey(fields[13]); err != nil {
		return record.Insurance{}, malformedRecord("insurance: %v", err)
	}
	if ins.WorkerSign, err = record.ParseSignature(fields[14]); err != nil {
		return record.Insurance{}, malformedRecord("insurance: %v", err)
	}
	return ins, nil
}
