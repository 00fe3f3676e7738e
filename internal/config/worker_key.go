package config

type WorkerKeyStruct struct {
	PersistSnapshotsQueue string
	PersistResultsQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSnapshotsQueue: "persist_snapshots_queue",
	PersistResultsQueue:   "persist_results_queue",
}
