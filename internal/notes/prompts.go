package notes

// Prompts for the three-step note pipeline. The working language follows the
// source podcasts, which are Chinese.

const segmentationSystemPrompt = `你是一位专业的播客内容分析师，擅长理解播客的话题结构和内容流向。
你的任务是根据播客内容的自然话题边界，将整个播客合理地分为若干段，并给出整体概括。`

const segmentationUserPromptTemplate = `请分析以下播客逐字稿，完成两个任务：

**任务1：生成整体概括**
请用约600字概括整个播客的核心内容、主要观点和关键信息。

**任务2：分段**
根据内容的话题变化和自然边界，将播客分为 %d 段左右（每小时约5段）。
每段应该是一个相对完整的话题或讨论单元。

## 播客逐字稿（带时间戳）

%s

## 输出格式

请严格按照以下JSON格式输出：

` + "```json" + `
{
  "overall_summary": "整体概括内容（约600字）",
  "segments": [
    {
      "title": "第一段的标题",
      "start_time": 0.0,
      "end_time": 720.5,
      "description": "这段讨论的核心内容简述"
    }
  ]
}
` + "```" + `

注意事项：
1. start_time 和 end_time 要精确到秒，必须对应实际播客中的时间点
2. 分段要根据话题的自然边界，不要在句子中间切断
3. 每段应该是一个相对完整的话题讨论
4. 时间戳格式为数字（秒数），不要用字符串`

const segmentNotesSystemPrompt = `你是一位专业的播客笔记撰写者，擅长将口语化的播客内容整理为结构清晰、信息密度高的笔记。`

const segmentNotesUserPromptTemplate = `请根据以下信息，为播客的这一段内容撰写详细笔记。

## 播客整体概括

%s

## 本段信息

**标题：** %s
**时间范围：** %.1fs - %.1fs
**简要描述：** %s

## 本段逐字稿

%s

## 输出要求

请按以下结构撰写本段笔记（使用Markdown格式）：

**核心内容：** （本段讨论的核心话题和主要观点）

**要点整理：**
- 要点1
- 要点2

**金句提取：**
> "最有价值的句子1"
> "最有价值的句子2"

**思考与启发：** （本段内容的思考和启发）`

const finalSummarySystemPrompt = `你是一位专业的播客内容分析师，擅长提炼播客的核心价值和洞察。
你的任务是根据详细的分段笔记，生成精炼的整体概括和关键洞察。`

const finalSummaryUserPromptTemplate = `请根据以下播客分段详情，完成两个任务：

**任务1：生成整体概括**
请用约600字概括整个播客的核心内容、主要观点和价值，要涵盖所有重要话题。

**任务2：提炼关键洞察**
精选 %d 个左右最有价值的洞察、观点或启发，每个洞察用一句话精炼表达。

## 播客分段详情

%s

## 输出格式

请严格按照以下JSON格式输出：

` + "```json" + `
{
  "overall_summary": "整体概括内容（约600字）",
  "key_insights": [
    "关键洞察1",
    "关键洞察2"
  ]
}
` + "```" + `

注意事项：
1. 整体概括要全面覆盖所有分段的核心内容
2. 关键洞察要选择最有价值、最发人深省的观点
3. 每个洞察要独立成句，简洁有力`
