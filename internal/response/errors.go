package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrNotAttemptOwner   ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation        ErrCode = "VALIDATION_ERROR"
	ErrInvalidID         ErrCode = "INVALID_ID"
	ErrInvalidPayload    ErrCode = "INVALID_PAYLOAD"
	ErrInvalidExamConfig ErrCode = "INVALID_EXAM_CONFIG"
	ErrUnknownAction     ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrInvalidTransition ErrCode = "INVALID_TRANSITION"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrIndexOutOfRange   ErrCode = "INDEX_OUT_OF_RANGE"
	ErrTimeExpired       ErrCode = "TIME_EXPIRED"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrResultNotReady    ErrCode = "RESULT_NOT_READY"
	ErrBackendFailed     ErrCode = "BACKEND_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Sesi login telah berakhir. Silakan masuk kembali untuk melanjutkan ujian."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrNotAttemptOwner:
		return "Percobaan ujian ini milik siswa lain."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidExamConfig:
		return "Konfigurasi ujian tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrNoQuestions:
		return "Tidak ada soal yang cocok dengan ujian yang diminta."
	case ErrInvalidTransition:
		return "Tindakan ini tidak diperbolehkan pada status ujian saat ini."
	case ErrUnknownQuestion:
		return "Soal tidak termasuk dalam ujian ini."
	case ErrIndexOutOfRange:
		return "Nomor soal di luar jangkauan."
	case ErrTimeExpired:
		return "Waktu habis. Jawaban sudah dikunci."
	case ErrSessionClosed:
		return "Sesi ujian sudah ditutup."
	case ErrSubmissionFailed:
		return "Gagal mengumpulkan jawaban. Silakan coba lagi."
	case ErrResultNotReady:
		return "Hasil ujian belum tersedia."
	case ErrBackendFailed:
		return "Gagal memulai ujian. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
