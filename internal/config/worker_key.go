package config

type WorkerKeyStruct struct {
	PersistProgressQueue      string
	PersistIncidentsQueue     string
	PersistSubmissionsQueue   string
	PersistQuestionOrderQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProgressQueue:      "persist_progress_queue",
	PersistIncidentsQueue:     "persist_incidents_queue",
	PersistSubmissionsQueue:   "persist_submissions_queue",
	PersistQuestionOrderQueue: "persist_question_order_queue",
}
