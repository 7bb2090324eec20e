package research

// Prompt templates for theme discovery, analyst generation, and the
// interview loop.

const themeQueryInstructions = `Create the best web search query to find the most relevant themes to answer the Market Question for the following market: %s
Prioritize the most important themes and the most relevant sources. Keep the query to no more than 300 characters.
Return a JSON object: {"search_query": "..."}`

const createThemesInstructions = `Given the following web search results, create a list of themes that are relevant to the market.
The themes will be used to create an 'analyst' persona, who will then research the market based on the theme.
So create the theme in such a way that when the analyst does the research about the theme, they will be researching the most important aspects of the market.
Put another way, the theme should be not just something of interest, but the subject matter that has the most impact on the market question itself.

Market: %s

Search results:
%s

1. Analyze the search results and identify the most relevant themes.
2. Create a list of themes that are relevant to the market.
3. Return a JSON object: {"themes": [{"topic": "...", "confidence": 0.0-1.0}, ...]}`

const analystInstructions = `You are tasked with creating a set of AI analyst personas. Follow these instructions carefully:

1. First, review the prediction market details:
%s

2. Look at the existing themes here:
%s

3. Look at the existing analysts here:
%s

4. If there are themes that don't have a matching analyst, create a new analyst for that theme.

Return a JSON object: {"analysts": [{"name": "...", "role": "...", "affiliation": "...", "description": "..."}, ...]}`

const questionInstructions = `You are an analyst tasked with interviewing an expert to learn about a specific topic.

Your goal is to boil down to interesting and specific insights related to your topic.

1. Interesting: Insights that people will find surprising or non-obvious.

2. Specific: Insights that avoid generalities and include specific examples from the expert.

Here is your topic of focus and set of goals: %s

Begin by introducing yourself using a name that fits your persona, and then ask your question.

Continue to ask questions to drill down and refine your understanding of the topic.

When you are satisfied with your understanding, complete the interview with: "Thank you so much for your help!"

Remember to stay in character throughout your response, reflecting the persona and goals provided to you.`

const searchQueryInstructions = `You will be given a conversation between an analyst and an expert.

Your goal is to generate a well-structured query for use in retrieval and / or web-search related to the conversation.

First, analyze the full conversation.

Pay particular attention to the final question posed by the analyst.

Convert this final question into a well-structured web search query.
Return a JSON object: {"search_query": "..."}`

const answerInstructions = `You are an expert being interviewed by an analyst.

Here is the analyst area of focus: %s.

Your goal is to answer a question posed by the interviewer.

To answer the question, use this context:

%s

When answering questions, follow these guidelines:

1. Use only the information provided in the context.

2. Do not introduce external information or make assumptions beyond what is explicitly stated in the context.

3. The context contains sources at the top of each individual document.

4. Include these sources in your answer next to any relevant statements. For example, for source # 1 use [1].

5. List your sources in order at the bottom of your answer. [1] Source 1, [2] Source 2, etc.`

const sectionWriterInstructions = `You are an expert technical writer.

Your task is to create a short, easily digestible section of a report based on a set of source documents.

1. Analyze the content of the source documents: the name of each source document is at the start of the document, with the <Document tag.

2. Make your title engaging based upon the focus area of the analyst:
%s

3. For the summary:
- Set up the summary with general background / context related to the focus area of the analyst
- Emphasize what is novel, interesting, or surprising about insights gathered from the interview
- Do not mention the names of interviewers or experts
- Aim for approximately 400 words maximum
- Use numbered citations (e.g., [1], [2]) based on information from source documents

4. For the sources:
- Include every source used in the summary, as full links
- There must be no redundant sources: combine duplicates into one entry

Return a JSON object: {"title": "...", "summary": "...", "sources": ["...", ...]}`
