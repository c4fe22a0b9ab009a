package simhash

import (
	"strings"
	"unicode"

	"github.com/go-dedup/simhash"
)

// NearDuplicateDistance 字幕行的相似度阈值：汉明距离<=3视为近似重复
const NearDuplicateDistance = 3

// MinWordsForFingerprint 少于该词数的行只做精确比较，短行指纹不稳定
const MinWordsForFingerprint = 4

// LineFeatureSet 实现 simhash.FeatureSet 接口，用于字幕行的特征提取
type LineFeatureSet struct {
	words []string
}

// NewLineFeatureSet 将一行文本切分为小写单词
func NewLineFeatureSet(text string) LineFeatureSet {
	return LineFeatureSet{words: Words(text)}
}

// GetFeatures 提取文本特征
// 单词unigram + 相邻单词bigram，bigram 保留词序信息
func (l LineFeatureSet) GetFeatures() []simhash.Feature {
	features := make([]simhash.Feature, 0, len(l.words)*2)
	for i, w := range l.words {
		features = append(features, simhash.NewFeature([]byte(w)))
		if i > 0 {
			features = append(features, simhash.NewFeature([]byte(l.words[i-1]+" "+w)))
		}
	}
	return features
}

// Words 返回小写单词序列，标点作为分隔符
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// CalculateSimHash 计算文本的 SimHash 指纹
func CalculateSimHash(text string) uint64 {
	sh := simhash.NewSimhash()
	return sh.GetSimhash(NewLineFeatureSet(text))
}

// HammingDistance 计算两个 SimHash 指纹的汉明距离（0-64）
func HammingDistance(hash1, hash2 uint64) int {
	return int(simhash.Compare(hash1, hash2))
}

// Fingerprint 字幕行的比较键
type Fingerprint struct {
	// Folded 空白折叠后的小写文本
	Folded string
	// Hash 仅当行包含足够单词时有效
	Hash    uint64
	HasHash bool
}

// NewFingerprint 计算一行的比较键
func NewFingerprint(line string) Fingerprint {
	folded := strings.Join(strings.Fields(strings.ToLower(line)), " ")
	fp := Fingerprint{Folded: folded}
	if len(Words(folded)) >= MinWordsForFingerprint {
		fp.Hash = CalculateSimHash(folded)
		fp.HasHash = true
	}
	return fp
}

// IsNearDuplicate 判断两行是否重复：折叠文本相等，或长行指纹距离在阈值内
func IsNearDuplicate(a, b Fingerprint) bool {
	if a.Folded == b.Folded {
		return true
	}
	if !a.HasHash || !b.HasHash {
		return false
	}
	return HammingDistance(a.Hash, b.Hash) <= NearDuplicateDistance
}
