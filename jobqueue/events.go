package jobqueue

import (
	"encoding/json"
	"log"

	"github.com/stevecastle/vr180/progress"
	"github.com/stevecastle/vr180/stream"
)

// Event types sent through the stream hub.
const (
	EventProcessingUpdate = "processingUpdate"
	eventStdoutPrefix     = "stdout-"
)

// SerializedJob is the payload of create, update and delete events.
type SerializedJob struct {
	UpdateType string `json:"updateType"`
	Job        Job    `json:"job"`
}

// SerializedStdout is the payload of stdout-<job id> events.
type SerializedStdout struct {
	UpdateType string `json:"updateType"`
	Line       string `json:"line"`
}

func broadcastJob(updateType string, job *Job) {
	j, err := json.Marshal(SerializedJob{UpdateType: updateType, Job: *job})
	if err != nil {
		log.Printf("error marshalling job event: %v", err)
		return
	}
	stream.Broadcast(stream.Message{Type: updateType, Msg: string(j), JobID: job.ID})
}

func broadcastStdout(id, line string) {
	j, err := json.Marshal(SerializedStdout{UpdateType: "stdout", Line: line})
	if err != nil {
		log.Printf("error marshalling stdout event: %v", err)
		return
	}
	stream.Broadcast(stream.Message{Type: eventStdoutPrefix + id, Msg: string(j), JobID: id})
}

func broadcastProgress(u progress.Update) {
	j, err := json.Marshal(u)
	if err != nil {
		log.Printf("error marshalling progress event: %v", err)
		return
	}
	stream.Broadcast(stream.Message{Type: EventProcessingUpdate, Msg: string(j), JobID: u.JobID})
}
