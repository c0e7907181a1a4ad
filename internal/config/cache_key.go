package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the JTI of a student's login
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// StudentShuffledQuestionKey returns the cache key for a student's shuffled questions
func (r *CacheKeyStruct) StudentShuffledQuestionKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:shuffled_questions", studentID, examID)
}

// StudentProgressKey returns the cache key for a student's resumable snapshot
func (r *CacheKeyStruct) StudentProgressKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:progress", studentID, examID)
}

// StudentSubmittedKey returns the idempotency key set once a submission is accepted
func (r *CacheKeyStruct) StudentSubmittedKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:submitted", studentID, examID)
}

// ExamPayloadKey returns the cache key for an exam's definition payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamAnswerKey returns the cache key for an exam's answer key hash
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamPointsKey returns the cache key for an exam's per-question points hash
func (r *CacheKeyStruct) ExamPointsKey(examID string) string {
	return fmt.Sprintf("exam:%s:points", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
