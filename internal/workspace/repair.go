package workspace

import (
	"encoding/json"

	"github.com/devroom-sh/devroom/internal/domain"
)

const (
	manifestName = "package.json"
	entryName    = "app.js"
)

// defaultManifest is the manifest written over an unparseable or missing
// package.json. Repairing an already-repaired tree must be a no-op, so
// this text has to survive its own parse check byte for byte.
const defaultManifest = `{
  "name": "devroom-app",
  "version": "1.0.0",
  "main": "app.js",
  "scripts": {
    "start": "node app.js"
  },
  "dependencies": {
    "express": "^4.21.2"
  }
}
`

// defaultEntryFile is synthesized when the tree has no app.js, so a run
// always has something to start.
const defaultEntryFile = `const express = require("express");

const app = express();
const port = process.env.PORT || 3000;

app.get("/", (req, res) => {
  res.send("Hello from devroom");
});

app.listen(port, () => {
  console.log("server listening on port " + port);
});
`

// RepairResult records what the repair step had to fix
type RepairResult struct {
	ManifestReplaced bool
	EntrySynthesized bool
}

// Repair validates a replacement tree and fixes it so the sandbox can
// always attempt a run: an unparseable package.json is replaced wholesale
// with a generated default, and a missing app.js entry file is
// synthesized. The input is not mutated; repair is deterministic and a
// fixed point.
func Repair(tree domain.FileTree) (domain.FileTree, RepairResult) {
	repaired := tree.Clone()
	if repaired == nil {
		repaired = domain.FileTree{}
	}

	var result RepairResult

	manifest, ok := repaired[manifestName]
	if !ok || manifest.Kind != domain.NodeFile || !parseableManifest(manifest.Contents) {
		repaired[manifestName] = domain.NewFile(defaultManifest)
		result.ManifestReplaced = true
	}

	entry, ok := repaired[entryName]
	if !ok || entry.Kind != domain.NodeFile {
		repaired[entryName] = domain.NewFile(defaultEntryFile)
		result.EntrySynthesized = true
	}

	return repaired, result
}

func parseableManifest(contents string) bool {
	var manifest map[string]any
	return json.Unmarshal([]byte(contents), &manifest) == nil && manifest != nil
}
