package trust

import "github.com/agenttrust/agenttrust/internal/logstream"

func validReport() logstream.IntegrityReport {
	return logstream.IntegrityReport{Valid: true, EntriesChecked: 3}
}

func invalidReport() logstream.IntegrityReport {
	return logstream.IntegrityReport{
		Valid:          false,
		EntriesChecked: 3,
		Findings: []logstream.IntegrityFinding{
			{Kind: logstream.FindingHashMismatch, File: "x.jsonl", Line: 2, Detail: "hash mismatch"},
		},
	}
}
