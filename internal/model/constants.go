package model

import "time"

const DefaultTimeout = 500 * time.Millisecond
const DefaultWorkerCountMultiplier = 8
const DefaultRecentTransactions = 10
const DefaultSweepBatchSize = 500

// ActiveMemberWindow is how far back an earn keeps a member counted as active.
const ActiveMemberWindow = 30 * 24 * time.Hour

const DefaultListLimit = 50
const MaxListLimit = 500
const MaxListOffset = 1_000_000

// MaxPointsPerEntry bounds a single credit or debit of points.
const MaxPointsPerEntry int64 = 1_000_000_000_000

const HeaderContentType = "Content-Type"

type ContextKey string

const KeyContextLogger ContextKey = "logger"
const KeyContextCallerID ContextKey = "caller-id"

const KeyLoggerError = "error"
