package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	PersistGradesQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	PersistGradesQueue:  "persist_grades_queue",
}
